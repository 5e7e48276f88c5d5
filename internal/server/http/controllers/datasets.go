package controllers

import (
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/idlab-discover/pointcast/internal/fault"
	"github.com/idlab-discover/pointcast/internal/jobs"
	"github.com/idlab-discover/pointcast/internal/runtime"
)

// DatasetsController serves dataset discovery for the UI and job requests.
type DatasetsController struct {
	rt *runtime.Runtime
}

// NewDatasetsController creates the controller.
func NewDatasetsController(rt *runtime.Runtime) *DatasetsController {
	return &DatasetsController{rt: rt}
}

// RegisterRoutes registers dataset endpoints on the mux.
func (c *DatasetsController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/datasets", c.handleList)
	mux.HandleFunc("/datasets/ply_files", c.handlePlyFiles)
}

type datasetInfo struct {
	Name       string   `json:"name"`
	PlyFolders []string `json:"ply_folders"`
	DraFolders []string `json:"dra_folders"`
}

// handleList walks the datasets root, reporting each dataset's Ply_* and
// Dra_* frame folders.
func (c *DatasetsController) handleList(w http.ResponseWriter, r *http.Request) {
	root := c.rt.Config().DatasetsRoot
	entries, err := os.ReadDir(root)
	if err != nil {
		writeError(w, fault.Wrap(err, fault.KindIo, "reading datasets root"))
		return
	}
	datasets := make([]datasetInfo, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info := datasetInfo{Name: e.Name(), PlyFolders: []string{}, DraFolders: []string{}}
		subs, err := os.ReadDir(filepath.Join(root, e.Name()))
		if err == nil {
			for _, sub := range subs {
				if !sub.IsDir() {
					continue
				}
				switch {
				case strings.HasPrefix(sub.Name(), "Ply_"):
					info.PlyFolders = append(info.PlyFolders, sub.Name())
				case strings.HasPrefix(sub.Name(), "Dra_"):
					info.DraFolders = append(info.DraFolders, sub.Name())
				}
			}
		}
		sort.Strings(info.PlyFolders)
		sort.Strings(info.DraFolders)
		datasets = append(datasets, info)
	}
	sort.Slice(datasets, func(i, j int) bool { return datasets[i].Name < datasets[j].Name })
	writeJSON(w, map[string]any{"datasets": datasets})
}

// handlePlyFiles lists the frame files of one dataset folder.
func (c *DatasetsController) handlePlyFiles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	dataset := q.Get("dataset")
	folder := q.Get("ply_folder")
	if dataset == "" || folder == "" {
		writeError(w, fault.New(fault.KindInvalidArgument, "dataset and ply_folder are required"))
		return
	}
	files, err := jobs.ListFrameFiles(c.rt.Config().DatasetsRoot, dataset, folder)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"files": files})
}
