package cache

// Meta keys carried inside a Query alongside field constraints. The "$"
// prefix keeps them out of the column namespace.
const (
	metaOrder   = "$order"
	metaLimit   = "$limit"
	metaInclude = "$include"
)

// Query describes a lookup against a single entity: an unordered set of
// (field, value) constraints plus optional ordering, limit, and eager-load
// hints. Values may be plain scalars for equality or Operator markers for
// range and set constraints.
type Query map[string]any

// Operator marks a non-equality constraint on a field. It serializes into a
// stable textual token (e.g. Gt(5) becomes {"$gt":5}) so that semantically
// equal queries always produce identical cache keys.
type Operator struct {
	Token string
	Value any
}

func Gt(v any) Operator   { return Operator{Token: "$gt", Value: v} }
func Gte(v any) Operator  { return Operator{Token: "$gte", Value: v} }
func Lt(v any) Operator   { return Operator{Token: "$lt", Value: v} }
func Lte(v any) Operator  { return Operator{Token: "$lte", Value: v} }
func Ne(v any) Operator   { return Operator{Token: "$ne", Value: v} }
func Like(s string) Operator { return Operator{Token: "$like", Value: s} }

// In matches any of the given values.
func In(vs ...any) Operator { return Operator{Token: "$in", Value: vs} }

// Where builds a Query from alternating field, value pairs.
// Panics on an odd number of arguments; this is a construction bug.
func Where(pairs ...any) Query {
	if len(pairs)%2 != 0 {
		panic("cache: Where requires field, value pairs")
	}
	q := make(Query, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		field, ok := pairs[i].(string)
		if !ok {
			panic("cache: Where field names must be strings")
		}
		q[field] = pairs[i+1]
	}
	return q
}

// OrderBy returns a copy of the query with an ordering term appended.
func (q Query) OrderBy(field, direction string) Query {
	out := q.clone()
	terms, _ := out[metaOrder].([][]string)
	out[metaOrder] = append(terms, []string{field, direction})
	return out
}

// WithLimit returns a copy of the query with a row limit.
func (q Query) WithLimit(n int) Query {
	out := q.clone()
	out[metaLimit] = n
	return out
}

// WithInclude returns a copy of the query requesting eager-loaded relations.
func (q Query) WithInclude(relations ...string) Query {
	out := q.clone()
	existing, _ := out[metaInclude].([]string)
	out[metaInclude] = append(existing, relations...)
	return out
}

// Order reports the ordering terms, if any.
func (q Query) Order() [][]string {
	terms, _ := q[metaOrder].([][]string)
	return terms
}

// Limit reports the row limit; zero means unlimited.
func (q Query) Limit() int {
	n, _ := q[metaLimit].(int)
	return n
}

// Include reports the eager-load relations, if any.
func (q Query) Include() []string {
	names, _ := q[metaInclude].([]string)
	return names
}

// Constraints returns only the field constraints, without meta keys. The
// result aliases the query's values but not its map.
func (q Query) Constraints() map[string]any {
	out := make(map[string]any, len(q))
	for k, v := range q {
		switch k {
		case metaOrder, metaLimit, metaInclude:
		default:
			out[k] = v
		}
	}
	return out
}

// Empty reports whether the query carries no field constraints. An empty
// query is never a valid cache candidate: caching it would cache
// "select everything".
func (q Query) Empty() bool {
	for k := range q {
		switch k {
		case metaOrder, metaLimit, metaInclude:
		default:
			return false
		}
	}
	return true
}

func (q Query) clone() Query {
	out := make(Query, len(q)+1)
	for k, v := range q {
		out[k] = v
	}
	return out
}
