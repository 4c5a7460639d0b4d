package device

// stagingEntry is a staging buffer waiting for the submission that reads it to complete.
type stagingEntry struct {
	buffer   Resource
	submitID uint64
}

// stagingQueue tracks staging buffers by the upload submission that consumes them. A buffer is
// tagged with the ID of the next submission when pushed and can only be released once that ID
// is reported complete.
type stagingQueue struct {
	entries       []stagingEntry
	nextSubmitID  uint64
	lastSubmitted uint64
	lastCompleted uint64
}

func newStagingQueue() stagingQueue {
	return stagingQueue{nextSubmitID: 1}
}

// release destroys every entry whose submission is at or below id and keeps the rest.
func (q *stagingQueue) release(c *Context, id uint64) int {
	kept := q.entries[:0]
	released := 0
	for _, e := range q.entries {
		if e.submitID <= id {
			e.buffer.Destroy(c)
			released++
			continue
		}
		kept = append(kept, e)
	}
	for i := len(kept); i < len(q.entries); i++ {
		q.entries[i] = stagingEntry{}
	}
	q.entries = kept
	return released
}

// releaseAll destroys every entry. Only valid once the device is idle.
func (q *stagingQueue) releaseAll(c *Context) {
	for _, e := range q.entries {
		e.buffer.Destroy(c)
	}
	q.entries = nil
}

// PushStagingBuffer hands a staging buffer to the Context. It is tagged with the ID of the next
// upload submission and stays alive until that submission completes.
//
// Parameters:
//   - buf: the staging buffer referenced by a recorded copy
//
// Returns:
//   - uint64: the submission ID the buffer waits for
func (c *Context) PushStagingBuffer(buf Resource) uint64 {
	id := c.staging.nextSubmitID
	c.staging.entries = append(c.staging.entries, stagingEntry{buffer: buf, submitID: id})
	return id
}

// MarkSubmitted records that the upload commands referencing the pending staging buffers have
// been submitted and returns that submission's ID. Buffers pushed afterwards belong to the
// next submission.
//
// Returns:
//   - uint64: the ID of the submission just made
func (c *Context) MarkSubmitted() uint64 {
	id := c.staging.nextSubmitID
	c.staging.lastSubmitted = id
	c.staging.nextSubmitID++
	return id
}

// CompleteSubmission releases every staging buffer whose submission ID is at or below id. The
// caller must have observed the completion (fence or idle wait). IDs that were never submitted
// are clamped to the last submitted ID.
//
// Parameters:
//   - id: the completed submission ID
//
// Returns:
//   - int: number of staging buffers released
func (c *Context) CompleteSubmission(id uint64) int {
	if id > c.staging.lastSubmitted {
		id = c.staging.lastSubmitted
	}
	if id > c.staging.lastCompleted {
		c.staging.lastCompleted = id
	}
	return c.staging.release(c, id)
}

// FlushStagingBuffers releases every staging buffer belonging to the last submitted upload. It
// must only be called after that submission's wait returned.
//
// Returns:
//   - int: number of staging buffers released
func (c *Context) FlushStagingBuffers() int {
	return c.CompleteSubmission(c.staging.lastSubmitted)
}

// PendingStagingBuffers returns the number of staging buffers not yet released.
func (c *Context) PendingStagingBuffers() int {
	return len(c.staging.entries)
}
