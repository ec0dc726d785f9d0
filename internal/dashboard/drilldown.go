package dashboard

import "github.com/kjannette/lab-dashboard/internal/models"

// DrillDown tracks which bucket's rows are open. The zero value has no
// selection.
type DrillDown struct {
	selected string
}

// Restore reopens a previously saved selection. It is dropped on the next
// Revalidate if the bucket is empty.
func (d *DrillDown) Restore(name string) {
	d.selected = name
}

func (d *DrillDown) Selected() (string, bool) {
	return d.selected, d.selected != ""
}

// Click handles a click on bucket name. Clicking the open bucket closes it;
// clicking a bucket with no members clears the selection.
func (d *DrillDown) Click(name string, m *Metrics) {
	if name == d.selected || len(m.Members(name)) == 0 {
		d.selected = ""
		return
	}
	d.selected = name
}

// Revalidate closes the selection when its bucket emptied after a data or
// filter change.
func (d *DrillDown) Revalidate(m *Metrics) {
	if d.selected != "" && len(m.Members(d.selected)) == 0 {
		d.selected = ""
	}
}

// Rows returns the open bucket's members, nil when nothing is selected.
func (d *DrillDown) Rows(m *Metrics) []models.Trade {
	if d.selected == "" {
		return nil
	}
	return m.Members(d.selected)
}
