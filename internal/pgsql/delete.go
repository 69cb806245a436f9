package pgsql

// DeleteQuery is a DELETE statement.
type DeleteQuery struct {
	*Query
}

// NewDeleteQuery deletes the rows matching selector. With limit1 at most one
// row is deleted.
func NewDeleteQuery(table *Table, selector any, limit1 bool) (*DeleteQuery, error) {
	q := newQuery(table)
	where, err := q.compileSelector(selector)
	if err != nil {
		return nil, err
	}

	q.atoms = append(q.atoms, Raw("DELETE FROM"), table)
	q.atoms = append(q.atoms, whereClause(table, where, limit1)...)
	return &DeleteQuery{Query: q}, nil
}

// whereClause renders the WHERE of an UPDATE or DELETE. With limit1 the
// selector moves into a single-row subquery on _id.
func whereClause(table *Table, where []Atom, limit1 bool) []Atom {
	if !limit1 {
		if len(where) == 0 {
			return nil
		}
		return append([]Atom{Raw("WHERE")}, where...)
	}

	atoms := []Atom{Raw("WHERE _id IN (SELECT _id FROM"), table}
	if len(where) > 0 {
		atoms = append(atoms, Raw("WHERE"))
		atoms = append(atoms, where...)
	}
	return append(atoms, Raw("LIMIT 1)"))
}
