package lines

// Delta is the multiset difference between two Counts.
type Delta struct {
	Added   Counts
	Removed Counts
}

// Empty reports whether neither side gained nor lost a line.
func (d Delta) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0
}

// Diff compares the occurrence counts of every line in before and after. A line
// whose count grew appears in Added with the growth, one whose count shrank
// appears in Removed with the loss. Line order is not considered.
func Diff(before, after Counts) Delta {
	d := Delta{Added: make(Counts), Removed: make(Counts)}

	for line, n := range after {
		if o := before[line]; n > o {
			d.Added[line] = n - o
		}
	}
	for line, o := range before {
		if n := after[line]; o > n {
			d.Removed[line] = o - n
		}
	}
	return d
}
