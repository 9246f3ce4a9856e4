package acquire

// deque holds task ids in visit order. Normal enqueue appends at the tail;
// resume-restart and retry-last insert at the head. Priority is positional,
// there is no separate priority field.
type deque struct {
	ids []int
}

func (d *deque) PushBack(id int) {
	d.ids = append(d.ids, id)
}

func (d *deque) PushFront(id int) {
	d.ids = append([]int{id}, d.ids...)
}

// PopFront removes and returns the head id. ok is false when empty.
func (d *deque) PopFront() (id int, ok bool) {
	if len(d.ids) == 0 {
		return 0, false
	}
	id = d.ids[0]
	d.ids = d.ids[1:]
	return id, true
}

// Remove deletes the first occurrence of id, reporting whether it was found.
func (d *deque) Remove(id int) bool {
	for i, v := range d.ids {
		if v == id {
			d.ids = append(d.ids[:i], d.ids[i+1:]...)
			return true
		}
	}
	return false
}

// Count returns how many times id appears in the queue.
func (d *deque) Count(id int) int {
	n := 0
	for _, v := range d.ids {
		if v == id {
			n++
		}
	}
	return n
}

func (d *deque) Len() int {
	return len(d.ids)
}
