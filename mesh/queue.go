package mesh

// diamondJob is a pending split or merge. The diamond it targets points back
// at the job so its priority can be updated in place. culls is the number of
// culls the manager had run when the job was last queued.
type diamondJob struct {
	handle   Handle
	priority float64
	index    int
	culls    uint64
}

// jobQueue is a max-priority heap of diamond jobs for container/heap.
type jobQueue []*diamondJob

func (q jobQueue) Len() int { return len(q) }

func (q jobQueue) Less(i, j int) bool { return q[i].priority > q[j].priority }

func (q jobQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *jobQueue) Push(x any) {
	job := x.(*diamondJob)
	job.index = len(*q)
	*q = append(*q, job)
}

func (q *jobQueue) Pop() any {
	old := *q
	n := len(old)
	job := old[n-1]
	old[n-1] = nil
	job.index = -1
	*q = old[:n-1]
	return job
}
