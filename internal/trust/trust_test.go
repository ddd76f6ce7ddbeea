package trust

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInsertAndContainsIsIdempotent(t *testing.T) {
	tbl := NewTable()
	tbl.Insert("046d:c534", "Logitech Receiver")
	assert.True(t, tbl.Contains("046d:c534"))
	assert.Equal(t, 1, tbl.Len())

	// Repeated insert must not duplicate.
	tbl.Insert("046d:c534", "Logitech Receiver")
	assert.Equal(t, 1, tbl.Len())
}

func TestSnapshotIsACopy(t *testing.T) {
	tbl := NewTable()
	tbl.Insert("abcd:1234", "Mystery Stick")

	snap := tbl.Snapshot()
	snap["abcd:1234"] = "tampered"

	assert.Equal(t, "Mystery Stick", tbl.Snapshot()["abcd:1234"])
}

func TestConcurrentReadersDuringWrite(t *testing.T) {
	tbl := NewTable()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			tbl.Insert("id", "name")
		}(i)
		go func() {
			defer wg.Done()
			_ = tbl.Contains("id")
			_ = tbl.Snapshot()
		}()
	}
	wg.Wait()
	assert.True(t, tbl.Contains("id"))
}

func TestContainsNameMatchesDescriptiveField(t *testing.T) {
	tbl := NewTable()
	tbl.Insert("046d:c534", "Logitech USB Receiver")
	assert.True(t, tbl.ContainsName("Logitech USB Receiver"))
	assert.False(t, tbl.ContainsName("Unrelated Keyboard"))
}
