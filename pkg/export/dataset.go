package export

// Dataset defines tabular export content.
type Dataset struct {
	Title   string
	Headers []string
	Rows    []map[string]string
}

// Cell addresses a grid position by zero-based row and column.
type Cell struct {
	Row int
	Col int
}

// Grid is a weekly view: Columns are days, Rows are period labels.
type Grid struct {
	Columns []string
	Rows    []string
	Cells   map[Cell]string
}

// NewGrid allocates an empty grid.
func NewGrid(columns, rows []string) *Grid {
	return &Grid{Columns: columns, Rows: rows, Cells: make(map[Cell]string)}
}

// Set writes text into a cell, joining with a newline when the cell is already taken.
func (g *Grid) Set(row, col int, text string) {
	if g == nil || row < 0 || col < 0 || row >= len(g.Rows) || col >= len(g.Columns) {
		return
	}
	key := Cell{Row: row, Col: col}
	if existing, ok := g.Cells[key]; ok && existing != "" {
		g.Cells[key] = existing + "\n" + text
		return
	}
	g.Cells[key] = text
}

// At returns the text of a cell.
func (g *Grid) At(row, col int) string {
	if g == nil {
		return ""
	}
	return g.Cells[Cell{Row: row, Col: col}]
}
