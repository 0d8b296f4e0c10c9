package schedule

// min-heap of pending entries, ordered by due time then registration order
type actionQueue []*entry

type entry struct {
	act   Action
	seq   uint64
	index int
}

func (q actionQueue) Len() int { return len(q) }

func (q actionQueue) Less(i, j int) bool {
	if q[i].act.Due.Equal(q[j].act.Due) {
		return q[i].seq < q[j].seq
	}
	return q[i].act.Due.Before(q[j].act.Due)
}

func (q actionQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *actionQueue) Push(x any) {
	ent := x.(*entry)
	ent.index = len(*q)
	*q = append(*q, ent)
}

func (q *actionQueue) Pop() any {
	old := *q
	n := len(old)
	ent := old[n-1]
	old[n-1] = nil
	ent.index = -1
	*q = old[:n-1]
	return ent
}
