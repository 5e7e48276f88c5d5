package pointcloud

import (
	"strings"
	"testing"
	"time"
)

func TestParsePLYASCII(t *testing.T) {
	src := strings.Join([]string{
		"ply",
		"format ascii 1.0",
		"comment test cloud",
		"element vertex 2",
		"property float x",
		"property float y",
		"property float z",
		"property uchar red",
		"property uchar green",
		"property uchar blue",
		"end_header",
		"0.0 0.0 0.0 255 0 0",
		"1.5 -2.0 3.0 0 255 0",
		"",
	}, "\n")
	points, err := ParsePLY([]byte(src))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("got %d points, want 2", len(points))
	}
	if points[1].X != 1.5 || points[1].Y != -2.0 || points[1].Z != 3.0 {
		t.Errorf("point 1 position = %+v", points[1])
	}
	if points[0].R != 255 || points[1].G != 255 {
		t.Errorf("colors not parsed: %+v %+v", points[0], points[1])
	}
}

func TestMarshalParseRoundTrip(t *testing.T) {
	in := []Point{
		{X: 0.5, Y: 1.25, Z: -3, R: 10, G: 20, B: 30},
		{X: -0.125, Y: 0, Z: 42, R: 200, G: 100, B: 50},
		{X: 7, Y: 8, Z: 9, R: 1, G: 2, B: 3},
	}
	out, err := ParsePLY(MarshalPLY(in))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("got %d points, want %d", len(out), len(in))
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("point %d: got %+v, want %+v", i, out[i], in[i])
		}
	}
}

func TestParsePLYRejectsGarbage(t *testing.T) {
	for _, src := range []string{
		"",
		"not a ply\n",
		"ply\nformat binary_big_endian 1.0\nend_header\n",
		"ply\nformat ascii 1.0\nelement vertex 5\nproperty float x\nend_header\n1.0\n", // truncated
	} {
		if _, err := ParsePLY([]byte(src)); err == nil {
			t.Errorf("expected error for %q", src)
		}
	}
}

func TestPartitionExact(t *testing.T) {
	cases := []struct {
		n      int
		pcts   []uint8
		counts []int
	}{
		{100, []uint8{15, 25, 60}, []int{15, 25, 60}},
		{101, []uint8{15, 25, 60}, []int{15, 25, 61}},
		{3, []uint8{50, 50}, []int{1, 2}},
		{10, nil, []int{10}},
	}
	for _, c := range cases {
		layers, err := Partition(c.n, c.pcts)
		if err != nil {
			t.Fatalf("partition(%d, %v): %v", c.n, c.pcts, err)
		}
		if len(layers) != len(c.counts) {
			t.Fatalf("partition(%d, %v): %d layers, want %d", c.n, c.pcts, len(layers), len(c.counts))
		}
		covered := 0
		for i, l := range layers {
			if l.Start != covered {
				t.Errorf("layer %d starts at %d, want %d", i, l.Start, covered)
			}
			if l.Count() != c.counts[i] {
				t.Errorf("layer %d count = %d, want %d", i, l.Count(), c.counts[i])
			}
			covered = l.End
		}
		if covered != c.n {
			t.Errorf("layers cover %d of %d points", covered, c.n)
		}
	}
}

func TestPartitionRejectsBadSum(t *testing.T) {
	if _, err := Partition(10, []uint8{40, 40}); err == nil {
		t.Fatal("expected error for percentages summing to 80")
	}
}

func TestGenerateShadedCubeSize(t *testing.T) {
	points := GenerateShadedCube(4, 1.0, [3]float32{1, 1, 1}, 45, time.Unix(1700000000, 0))
	if len(points) != 64 {
		t.Fatalf("got %d points, want 64", len(points))
	}
}
