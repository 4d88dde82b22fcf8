package scheduler

import (
	"container/heap"
)

// jobHeap orders jobs by due time, FIFO by creation sequence on ties.
type jobHeap []*Job

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	di, dj := h[i].due(), h[j].due()
	if di.Equal(dj) {
		return h[i].seq < h[j].seq
	}
	return di.Before(dj)
}

func (h jobHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *jobHeap) Push(x any) { *h = append(*h, x.(*Job)) }

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	job := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return job
}

// jobQueue is the scheduler's pending/retrying queue. Not safe for concurrent
// use; the scheduler serializes access under its own lock.
type jobQueue struct {
	heap jobHeap
}

func newJobQueue() *jobQueue {
	q := &jobQueue{}
	heap.Init(&q.heap)
	return q
}

func (q *jobQueue) push(job *Job) {
	heap.Push(&q.heap, job)
}

// peek returns the earliest-due job without removing it.
func (q *jobQueue) peek() *Job {
	if len(q.heap) == 0 {
		return nil
	}
	return q.heap[0]
}

func (q *jobQueue) pop() *Job {
	if len(q.heap) == 0 {
		return nil
	}
	return heap.Pop(&q.heap).(*Job)
}

// remove deletes the job with the given ID, if queued.
func (q *jobQueue) remove(jobID string) *Job {
	for i, job := range q.heap {
		if job.ID == jobID {
			heap.Remove(&q.heap, i)
			return job
		}
	}
	return nil
}

func (q *jobQueue) len() int {
	return len(q.heap)
}
