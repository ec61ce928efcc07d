package testkit

import (
	"math"
	"math/rand"
	"time"

	"github.com/seismolab/waveset/pkg/dataset"
)

// RNG provides a deterministic random number generator.
// If seed is 0, it uses the current time.
func RNG(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

// RandomBytes generates a slice of random bytes of the given length.
func RandomBytes(r *rand.Rand, length int) []byte {
	b := make([]byte, length)
	for i := range b {
		b[i] = byte(r.Intn(256))
	}
	return b
}

// CompressibleBytes generates a slice of highly compressible bytes of the
// given length, with a sprinkle of randomness so it is not fully uniform.
func CompressibleBytes(r *rand.Rand, length int) []byte {
	b := make([]byte, length)
	pattern := []byte("highly compressible repeating pattern ")
	pLen := len(pattern)
	for i := 0; i < length; i++ {
		b[i] = pattern[i%pLen]
	}

	for i := 0; i < length/1024; i++ {
		b[r.Intn(length)] = byte(r.Intn(256))
	}

	return b
}

// Waveform synthesizes one record: a noisy sinusoid per component, phase-
// shifted between components, resembling a three-channel seismogram enough
// for container and cache tests.
func Waveform(r *rand.Rand, components, points int) []float32 {
	out := make([]float32, components*points)
	freq := 1 + r.Float64()*9
	for c := 0; c < components; c++ {
		phase := float64(c) * math.Pi / 4
		for p := 0; p < points; p++ {
			v := math.Sin(2*math.Pi*freq*float64(p)/float64(points)+phase) + r.NormFloat64()*0.1
			out[c*points+p] = float32(v)
		}
	}
	return out
}

// Samples synthesizes n labeled waveform records, cycling through labels.
func Samples(r *rand.Rand, n, components, points int, labels []string) []dataset.Sample {
	out := make([]dataset.Sample, n)
	for i := range out {
		s := dataset.Sample{
			Data:       Waveform(r, components, points),
			Components: components,
			Points:     points,
		}
		if len(labels) > 0 {
			s.Target = labels[i%len(labels)]
		}
		out[i] = s
	}
	return out
}
