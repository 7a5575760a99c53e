// Package ring implements an intrusive, doubly-linked circular list with a
// sentinel head. Unlike a slice-backed ring, nodes are embedded directly in
// caller structures, so arbitrary membership tests and removals are O(1)
// without a separate index.
package ring

// Node is one element of a ring. The zero Node is not usable; a Node only
// becomes part of a ring once pushed onto a List.
type Node[T any] struct {
	prev, next *Node[T]
	linked     bool
	Value      T
}

// Linked reports whether n currently belongs to some ring.
func (n *Node[T]) Linked() bool { return n.linked }

// List is the sentinel head of a ring. The zero value is an empty, usable
// ring.
type List[T any] struct {
	sentinel Node[T]
	inited   bool
}

func (l *List[T]) init() {
	if l.inited {
		return
	}
	l.sentinel.next = &l.sentinel
	l.sentinel.prev = &l.sentinel
	l.inited = true
}

// Empty reports whether the ring has no elements. O(1).
func (l *List[T]) Empty() bool {
	l.init()
	return l.sentinel.next == &l.sentinel
}

// PushHead inserts n at the head end of the ring (the "after=1" insertion
// point in the source kernel's linked_ring_insert). O(1).
func (l *List[T]) PushHead(n *Node[T]) {
	l.init()
	n.next = l.sentinel.next
	n.prev = &l.sentinel
	l.sentinel.next.prev = n
	l.sentinel.next = n
	n.linked = true
}

// PopTail removes and returns the node at the tail end of the ring (the
// selection point), or nil if the ring is empty. O(1).
func (l *List[T]) PopTail() *Node[T] {
	l.init()
	if l.Empty() {
		return nil
	}
	n := l.sentinel.prev
	Remove(n)
	return n
}

// Remove unlinks n from whatever ring it currently belongs to. It is a
// no-op if n is not linked. O(1).
func Remove[T any](n *Node[T]) {
	if !n.linked {
		return
	}
	n.prev.next = n.next
	n.next.prev = n.prev
	n.prev = nil
	n.next = nil
	n.linked = false
}
