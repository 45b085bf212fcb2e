package selection

import (
	"math/rand/v2"
	"time"
)

// pcgStream is the fixed PCG increment; only the seed varies between draws.
const pcgStream = 0x9e3779b97f4a7c15

type shuffler interface {
	Shuffle(n int, swap func(i, j int))
}

func newRand(seed *int64) *rand.Rand {
	s := uint64(time.Now().UnixNano())
	if seed != nil {
		s = uint64(*seed)
	}
	return rand.New(rand.NewPCG(s, pcgStream))
}

// Seed returns a pointer to v, for Request.Seed.
func Seed(v int64) *int64 {
	return &v
}
