package shared

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordLocksSerializeSameKey(t *testing.T) {
	locks := NewRecordLocks()
	var active, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock(RecordLockKey(1))
			defer unlock()
			now := atomic.AddInt32(&active, 1)
			for {
				old := atomic.LoadInt32(&peak)
				if now <= old || atomic.CompareAndSwapInt32(&peak, old, now) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&active, -1)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), peak)
	assert.Equal(t, 0, locks.Len())
}

func TestRecordLocksIndependentKeys(t *testing.T) {
	locks := NewRecordLocks()
	unlockFirst := locks.Lock(RecordLockKey(1))
	done := make(chan struct{})
	go func() {
		unlock := locks.Lock(RecordLockKey(2))
		unlock()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("unrelated key blocked")
	}
	assert.Equal(t, 1, locks.Len())
	unlockFirst()
	unlockFirst()
	assert.Equal(t, 0, locks.Len())
}

func TestApprovalLogValidate(t *testing.T) {
	valid := ApprovalLog{Module: "expense", RefID: 1, ActorID: 2, Action: ApprovalPay}
	require.NoError(t, valid.Validate())

	missing := valid
	missing.RefID = 0
	assert.Error(t, missing.Validate())
	missing = valid
	missing.ActorID = 0
	assert.Error(t, missing.Validate())
	missing = valid
	missing.Action = ""
	assert.Error(t, missing.Validate())
}

func TestIsUniqueViolation(t *testing.T) {
	assert.False(t, IsUniqueViolation(nil))
	assert.False(t, IsUniqueViolation(ErrNotFound))
}
