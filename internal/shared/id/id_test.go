package id

import (
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateUnique(t *testing.T) {
	gen := NewGenerator()

	id1 := gen.Generate()
	id2 := gen.Generate()

	assert.NotEqual(t, id1.String(), id2.String())
	assert.Len(t, gen.GenerateString(), 26)
}

func TestTypedIDs(t *testing.T) {
	iso := NewIsolateID()
	req := NewRequestID()
	conn := NewConnectionID()

	assert.True(t, strings.HasPrefix(iso.String(), "iso_"), iso)
	assert.True(t, strings.HasPrefix(req.String(), "req_"), req)
	assert.True(t, strings.HasPrefix(conn.String(), "conn_"), conn)

	assert.True(t, IsValid(iso.String()))
	assert.True(t, IsValid(req.String()))

	_, err := uuid.Parse(strings.TrimPrefix(conn.String(), "conn_"))
	assert.NoError(t, err)
}

func TestParseAndTimestamp(t *testing.T) {
	before := time.Now().Add(-time.Second)
	iso := NewIsolateID()

	ts, err := Timestamp(iso.String())
	require.NoError(t, err)
	assert.True(t, ts.After(before))

	_, err = Parse("iso_not-a-ulid")
	assert.Error(t, err)
	assert.False(t, IsValid("garbage"))
}

func TestConcurrentGeneration(t *testing.T) {
	gen := NewGenerator()

	const workers, perWorker = 8, 200
	var (
		mu   sync.Mutex
		seen = make(map[string]bool)
		wg   sync.WaitGroup
	)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				s := gen.GenerateWithPrefix(IsolatePrefix)
				mu.Lock()
				seen[s] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*perWorker)
}

func TestLexicographicSorting(t *testing.T) {
	gen := NewGenerator()

	ids := make([]string, 50)
	for i := range ids {
		ids[i] = gen.GenerateString()
	}

	assert.True(t, sort.StringsAreSorted(ids), "monotonic ULIDs should sort by creation order")
}

func TestDefaultGenerator(t *testing.T) {
	assert.Same(t, Default(), Default())
}

func BenchmarkGenerateWithPrefix(b *testing.B) {
	gen := NewGenerator()
	for i := 0; i < b.N; i++ {
		_ = gen.GenerateWithPrefix(IsolatePrefix)
	}
}
