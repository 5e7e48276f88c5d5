package jobs

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/idlab-discover/pointcast/internal/fault"
	"github.com/idlab-discover/pointcast/internal/pointcloud"
)

// frameSource produces the point cloud for each producer tick. Next returns
// false when the source is exhausted.
type frameSource interface {
	Next() ([]pointcloud.Point, bool)
}

// datasetSource replays the frame files of one dataset folder in
// lexicographic order.
type datasetSource struct {
	paths []string
	idx   int
	loop  bool
}

// ListFrameFiles returns the frame file names of a dataset folder sorted
// lexicographically. Only files matching the folder's extension convention
// (the folder prefix before '_', lowercased, e.g. Ply_... -> .ply) are
// considered; only an empty prefix falls back to .ply.
func ListFrameFiles(root, dataset, folder string) ([]string, error) {
	dir := filepath.Join(root, dataset, folder)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fault.Wrap(err, fault.KindNotFound, "reading dataset folder %s", dir)
	}
	ext := "." + strings.ToLower(strings.SplitN(filepath.Base(folder), "_", 2)[0])
	if ext == "." {
		ext = ".ply"
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(strings.ToLower(e.Name()), ext) {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

func newDatasetSource(root, dataset, folder string, loop bool) (*datasetSource, error) {
	files, err := ListFrameFiles(root, dataset, folder)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fault.New(fault.KindNotFound, "no frame files in %s/%s", dataset, folder)
	}
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = filepath.Join(root, dataset, folder, f)
	}
	return &datasetSource{paths: paths, loop: loop}, nil
}

func (d *datasetSource) Next() ([]pointcloud.Point, bool) {
	if d.idx >= len(d.paths) {
		if !d.loop {
			return nil, false
		}
		d.idx = 0
	}
	path := d.paths[d.idx]
	d.idx++
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, true // transient: skip the frame, keep the job alive
	}
	points, err := pointcloud.ParsePLY(raw)
	if err != nil {
		return nil, true
	}
	return points, true
}

// generatorSource produces procedural frames forever.
type generatorSource struct {
	name pointcloud.GeneratorName
}

func (g *generatorSource) Next() ([]pointcloud.Point, bool) {
	switch g.name {
	case pointcloud.GeneratorCube:
		return pointcloud.GenerateShadedCube(46, 15.0, [3]float32{1, 1, 1}, 45.0, time.Now()), true
	default:
		return pointcloud.GenerateBasic(), true
	}
}
