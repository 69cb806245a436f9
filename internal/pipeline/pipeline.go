// Package pipeline translates document-store aggregation pipelines into
// nested SELECT queries.
package pipeline

import (
	"errors"
	"fmt"

	"github.com/rzpsarthak13/docbridge/internal/document"
	"github.com/rzpsarthak13/docbridge/internal/pgsql"
)

var (
	// ErrUnwindNotImplemented is returned for $unwind stages.
	ErrUnwindNotImplemented = errors.New("$unwind not yet implemented")

	// ErrUnsupportedStage is returned for stage kinds with no translation.
	ErrUnsupportedStage = errors.New("invalid pipeline stage")

	// ErrInvalidStage is returned when a stage is not a single-key document
	// or its argument has the wrong shape.
	ErrInvalidStage = errors.New("invalid pipeline stage format")
)

// Stage ranks follow the order in which a single SELECT applies its
// clauses. A stage can join the current unit only when it comes strictly
// later in that order than every stage already in the unit.
const (
	rankLookup = iota
	rankMatch
	rankSelect
	rankSort
	rankSkip
	rankLimit
)

// Unit is the set of stages that compile into one SELECT. Units are never
// modified: adding a stage returns a new unit.
type Unit struct {
	source pgsql.Source
	rank   int

	selector  any
	addFields any
	project   any
	sort      any
	limit     int64
	skip      int64
	lookup    *pgsql.Lookup
}

func newUnit(source pgsql.Source) *Unit {
	return &Unit{source: source, rank: -1}
}

// ToQuery builds the SELECT for this unit and every unit below it.
func (u *Unit) ToQuery() (*pgsql.SelectQuery, error) {
	return pgsql.NewSelectQuery(u.source, u.selector,
		&pgsql.SelectOptions{
			Sort:       u.sort,
			Limit:      u.limit,
			Skip:       u.skip,
			Projection: u.project,
		},
		&pgsql.SQLOptions{
			AddFields: u.addFields,
			Lookup:    u.lookup,
		},
	)
}

// with returns a unit holding the stage applied by set. The stage is merged
// into a copy of u when its rank allows, otherwise u becomes the source of a
// new unit.
func (u *Unit) with(rank int, set func(*Unit)) (*Unit, error) {
	if rank > u.rank {
		next := *u
		next.rank = rank
		set(&next)
		return &next, nil
	}

	base, err := u.ToQuery()
	if err != nil {
		return nil, err
	}
	next := newUnit(base.Query)
	next.rank = rank
	set(next)
	return next, nil
}

// Pipeline is an aggregation pipeline over one table.
type Pipeline struct {
	table  *pgsql.Table
	stages []any
}

// New creates a pipeline. Each stage is a single-key document such as
// bson.D{{Key: "$match", Value: ...}}.
func New(table *pgsql.Table, stages []any) *Pipeline {
	return &Pipeline{table: table, stages: stages}
}

// Compile returns the SQL and arguments of the pipeline.
func (p *Pipeline) Compile() (string, []any, error) {
	q, err := p.ToQuery()
	if err != nil {
		return "", nil, err
	}
	sql, args := q.Compile()
	return sql, args, nil
}

// ToQuery folds the stages into units and returns the outermost SELECT.
func (p *Pipeline) ToQuery() (*pgsql.SelectQuery, error) {
	unit := newUnit(p.table)

	for i, stage := range p.stages {
		entries, ok := document.Entries(stage)
		if !ok || len(entries) != 1 {
			return nil, fmt.Errorf("%w: stage %d must have exactly one key", ErrInvalidStage, i)
		}
		name, data := entries[0].Key, entries[0].Value

		next, err := unit.addStage(name, data)
		if err != nil {
			return nil, fmt.Errorf("stage %d (%s): %w", i, name, err)
		}
		unit = next
	}

	return unit.ToQuery()
}

func (u *Unit) addStage(name string, data any) (*Unit, error) {
	switch name {
	case "$match":
		return u.with(rankMatch, func(n *Unit) { n.selector = data })

	case "$addFields":
		return u.with(rankSelect, func(n *Unit) { n.addFields = data })

	case "$project":
		return u.with(rankSelect, func(n *Unit) { n.project = data })

	case "$sort":
		return u.with(rankSort, func(n *Unit) { n.sort = data })

	case "$limit":
		n, err := count(data, 1)
		if err != nil {
			return nil, err
		}
		return u.with(rankLimit, func(next *Unit) { next.limit = n })

	case "$skip":
		n, err := count(data, 0)
		if err != nil {
			return nil, err
		}
		return u.with(rankSkip, func(next *Unit) { next.skip = n })

	case "$lookup":
		l, err := decodeLookup(data)
		if err != nil {
			return nil, err
		}
		return u.with(rankLookup, func(n *Unit) { n.lookup = l })

	case "$unwind":
		return nil, ErrUnwindNotImplemented
	}

	return nil, fmt.Errorf("%w: %s", ErrUnsupportedStage, name)
}

// count reads the integer argument of $limit or $skip.
func count(data any, minimum int64) (int64, error) {
	if !document.IsIntegral(data) {
		return 0, fmt.Errorf("%w: expected an integer, got %v", ErrInvalidStage, data)
	}
	f, _ := document.Number(data)
	n := int64(f)
	if n < minimum {
		return 0, fmt.Errorf("%w: expected at least %d, got %d", ErrInvalidStage, minimum, n)
	}
	return n, nil
}

func decodeLookup(data any) (*pgsql.Lookup, error) {
	if !document.IsDocument(data) {
		return nil, fmt.Errorf("%w: $lookup expects a document", ErrInvalidStage)
	}
	field := func(key string) string {
		v, _ := document.Get(data, key)
		s, _ := v.(string)
		return s
	}
	return &pgsql.Lookup{
		From:         field("from"),
		LocalField:   field("localField"),
		ForeignField: field("foreignField"),
		As:           field("as"),
	}, nil
}
