package rooms

import (
	"math/rand"
	"sync"
	"time"
)

// Alphabet excludes the ambiguous letters I and O; digits are not used.
const alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ"

const codeLength = 6

const maxCodeAttempts = 10

// Rand is the subset of *rand.Rand used for codes and question views.
type Rand interface {
	Intn(n int) int
	Shuffle(n int, swap func(i, j int))
}

// CodeGenerator returns a candidate room code. Uniqueness is checked by the registry.
type CodeGenerator func() string

type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewRand returns a Rand safe for concurrent use. A zero seed uses the clock.
func NewRand(seed int64) Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &lockedRand{r: rand.New(rand.NewSource(seed))}
}

func (l *lockedRand) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Intn(n)
}

func (l *lockedRand) Shuffle(n int, swap func(i, j int)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.r.Shuffle(n, swap)
}

// NewCodeGenerator draws codes from rng.
func NewCodeGenerator(rng Rand) CodeGenerator {
	return func() string {
		code := make([]byte, codeLength)
		for i := range code {
			code[i] = alphabet[rng.Intn(len(alphabet))]
		}
		return string(code)
	}
}
