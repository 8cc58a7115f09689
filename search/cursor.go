package search

// Cursor remembers where the last search for a query ended, so repeated
// searches step through the occurrences. A forward hit moves the cursor to
// the end of the match, a backward hit to its start.
type Cursor struct {
	Pos           int
	Query         string
	CaseSensitive bool
	Direction     Direction
}

// Next searches buffer and advances the cursor. Changing the query or the
// case flag restarts from the top of the buffer.
func (c *Cursor) Next(buffer, query string, caseSensitive bool, dir Direction) (Match, error) {
	if query != c.Query || caseSensitive != c.CaseSensitive {
		c.Pos = 0
		c.Query = query
		c.CaseSensitive = caseSensitive
	}
	c.Direction = dir

	m, err := Find(buffer, c.Pos, query, caseSensitive, dir)
	if err != nil {
		return Match{}, err
	}
	if dir == Backward {
		c.Pos = m.Start
	} else {
		c.Pos = m.End
	}
	return m, nil
}

// Reopen is called when the find UI is opened again. With resume the
// position is kept, otherwise the next search starts from the top.
func (c *Cursor) Reopen(resume bool) {
	if !resume {
		c.Pos = 0
	}
}

// Reset clears the cursor entirely
func (c *Cursor) Reset() {
	*c = Cursor{}
}
