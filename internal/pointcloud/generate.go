package pointcloud

import (
	"math"
	"time"
)

// GeneratorName selects one of the procedural frame sources.
type GeneratorName string

const (
	GeneratorBasic GeneratorName = "Basic"
	GeneratorCube  GeneratorName = "Cube"
)

// ParseGenerator maps a request parameter onto a GeneratorName.
func ParseGenerator(s string) (GeneratorName, bool) {
	switch s {
	case "Basic", "basic":
		return GeneratorBasic, true
	case "Cube", "cube":
		return GeneratorCube, true
	}
	return "", false
}

// GenerateBasic returns a minimal four-point axis marker cloud.
func GenerateBasic() []Point {
	return []Point{
		{X: 0, Y: 0, Z: 0, R: 255, G: 255, B: 255},
		{X: 1, Y: 0, Z: 0, R: 255, G: 0, B: 0},
		{X: 0, Y: 1, Z: 0, R: 0, G: 255, B: 0},
		{X: 0, Y: 0, Z: 1, R: 0, G: 0, B: 255},
	}
}

// GenerateShadedCube builds a solid cube of side points with time-based hue
// rotation and diffuse shading from the given light direction. side is the
// number of points per edge, spacing the distance between neighbours.
func GenerateShadedCube(side int, spacing float32, lightDir [3]float32, rotationDegPerSec float64, now time.Time) []Point {
	if side < 2 {
		side = 2
	}
	seconds := float64(now.UnixMilli()) / 1000.0
	hue := math.Mod(seconds*60, 360)
	angle := math.Mod(seconds*rotationDegPerSec, 360) * math.Pi / 180

	sin, cos := math.Sin(angle), math.Cos(angle)
	lx, ly, lz := normalize3(float64(lightDir[0]), float64(lightDir[1]), float64(lightDir[2]))

	half := float32(side-1) * spacing / 2
	points := make([]Point, 0, side*side*side)
	for i := 0; i < side; i++ {
		for j := 0; j < side; j++ {
			for k := 0; k < side; k++ {
				x := float64(float32(i)*spacing - half)
				y := float64(float32(j)*spacing - half)
				z := float64(float32(k)*spacing - half)

				// rotate around the Y axis
				rx := x*cos + z*sin
				rz := -x*sin + z*cos

				// diffuse shading against the outward direction
				nx, ny, nz := normalize3(rx, y, rz)
				shade := nx*lx + ny*ly + nz*lz
				if shade < 0.2 {
					shade = 0.2
				}

				r, g, b := hsvToRGB(hue, 1.0, shade)
				points = append(points, Point{
					X: float32(rx), Y: float32(y), Z: float32(rz),
					R: r, G: g, B: b,
				})
			}
		}
	}
	return points
}

func normalize3(x, y, z float64) (float64, float64, float64) {
	n := math.Sqrt(x*x + y*y + z*z)
	if n == 0 {
		return 0, 0, 0
	}
	return x / n, y / n, z / n
}

// hsvToRGB converts h in [0,360), s and v in [0,1] to 8-bit RGB.
func hsvToRGB(h, s, v float64) (uint8, uint8, uint8) {
	h = math.Mod(h, 360)
	c := v * s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := v - c

	var r, g, b float64
	switch int(h / 60) {
	case 0:
		r, g, b = c, x, 0
	case 1:
		r, g, b = x, c, 0
	case 2:
		r, g, b = 0, c, x
	case 3:
		r, g, b = 0, x, c
	case 4:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}
	toByte := func(f float64) uint8 {
		f = (f + m) * 255
		if f < 0 {
			f = 0
		}
		if f > 255 {
			f = 255
		}
		return uint8(f)
	}
	return toByte(r), toByte(g), toByte(b)
}
