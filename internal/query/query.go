// Package query implements the catalog's compact query language: field
// predicates, year ranges and free-text terms combined by conjunction.
package query

import (
	"strconv"
	"strings"

	"github.com/ariejan/apollo/internal/music"
)

// Field is a queryable track column.
type Field string

const (
	FieldArtist Field = "artist"
	FieldAlbum  Field = "album"
	FieldTitle  Field = "title"
	FieldGenre  Field = "genre"
	FieldYear   Field = "year"
	FieldFormat Field = "format"
)

// FieldTerm is an equality predicate on a single field.
type FieldTerm struct {
	Field Field
	Value string
}

// YearRange is an inclusive year interval. A nil bound leaves that side
// open; an open-ended range also matches tracks with no year.
type YearRange struct {
	Start *int
	End   *int
}

// Query is a parsed expression: all terms combine by conjunction.
type Query struct {
	Fields []FieldTerm
	Ranges []YearRange
	// Free carries free-text terms; quoted records whether each was
	// double-quoted in the input (quoted terms become FTS phrases).
	Free   []string
	quoted []bool
}

// IsEmpty reports whether the query matches everything.
func (q *Query) IsEmpty() bool {
	return len(q.Fields) == 0 && len(q.Ranges) == 0 && len(q.Free) == 0
}

// HasFreeText reports whether the query carries any free-text terms.
func (q *Query) HasFreeText() bool { return len(q.Free) > 0 }

// Parse parses a query expression. The empty string is valid and matches
// everything.
func Parse(input string) (*Query, error) {
	q := &Query{}
	toks, err := tokenize(input)
	if err != nil {
		return nil, err
	}
	for _, tok := range toks {
		if tok.quoted || !strings.Contains(tok.text, ":") {
			q.Free = append(q.Free, tok.text)
			q.quoted = append(q.quoted, tok.quoted)
			continue
		}
		key, value, _ := strings.Cut(tok.text, ":")
		switch Field(strings.ToLower(key)) {
		case FieldYear:
			if strings.Contains(value, "..") {
				r, err := parseYearRange(value)
				if err != nil {
					return nil, err
				}
				q.Ranges = append(q.Ranges, r)
			} else {
				year, err := strconv.Atoi(value)
				if err != nil {
					return nil, &music.BadQueryError{Detail: "invalid year " + strconv.Quote(value)}
				}
				q.Ranges = append(q.Ranges, YearRange{Start: &year, End: &year})
			}
		case FieldArtist, FieldAlbum, FieldTitle, FieldGenre, FieldFormat:
			q.Fields = append(q.Fields, FieldTerm{Field: Field(strings.ToLower(key)), Value: value})
		default:
			return nil, &music.BadQueryError{Detail: "unknown field " + strconv.Quote(key)}
		}
	}
	return q, nil
}

func parseYearRange(value string) (YearRange, error) {
	start, end, _ := strings.Cut(value, "..")
	var r YearRange
	if start != "" {
		n, err := strconv.Atoi(start)
		if err != nil {
			return r, &music.BadQueryError{Detail: "invalid year range " + strconv.Quote(value)}
		}
		r.Start = &n
	}
	if end != "" {
		n, err := strconv.Atoi(end)
		if err != nil {
			return r, &music.BadQueryError{Detail: "invalid year range " + strconv.Quote(value)}
		}
		r.End = &n
	}
	if r.Start == nil && r.End == nil {
		return r, &music.BadQueryError{Detail: "empty year range"}
	}
	if r.Start != nil && r.End != nil && *r.Start > *r.End {
		return r, &music.BadQueryError{Detail: "inverted year range " + strconv.Quote(value)}
	}
	return r, nil
}

type token struct {
	text   string
	quoted bool
}

// tokenize splits on whitespace, honoring double quotes both as whole
// terms ("the band") and as field values (artist:"the band").
func tokenize(input string) ([]token, error) {
	var toks []token
	var cur strings.Builder
	quoted := false
	inQuote := false
	flush := func() {
		if cur.Len() > 0 || quoted {
			toks = append(toks, token{text: cur.String(), quoted: quoted})
		}
		cur.Reset()
		quoted = false
	}
	for _, r := range input {
		switch {
		case r == '"':
			if inQuote {
				inQuote = false
			} else {
				inQuote = true
				if cur.Len() == 0 {
					quoted = true
				}
			}
		case !inQuote && (r == ' ' || r == '\t' || r == '\n'):
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	if inQuote {
		return nil, &music.BadQueryError{Detail: "unterminated quote"}
	}
	flush()
	return toks, nil
}

// ftsMetachars are passed through to FTS verbatim when present.
const ftsMetachars = `"*:-`

// FTSExpression builds the MATCH expression for the free-text terms.
// Terms without metacharacters are prefix-expanded token by token; a term
// carrying any metacharacter is passed verbatim. Quoted terms become
// phrases. Returns "" when the query has no free text.
func (q *Query) FTSExpression() string {
	if len(q.Free) == 0 {
		return ""
	}
	parts := make([]string, 0, len(q.Free))
	for i, term := range q.Free {
		switch {
		case q.quoted[i]:
			parts = append(parts, `"`+strings.ReplaceAll(term, `"`, `""`)+`"`)
		case strings.ContainsAny(term, ftsMetachars):
			parts = append(parts, term)
		default:
			toks := strings.Fields(term)
			for j, t := range toks {
				toks[j] = t + "*"
			}
			parts = append(parts, strings.Join(toks, " "))
		}
	}
	return strings.Join(parts, " ")
}

// WhereSQL lowers the query to a WHERE clause over the tracks table plus
// bind arguments. The clause is "1=1" for an empty query. Free-text terms
// lower to a rowid subselect against tracks_fts.
func (q *Query) WhereSQL() (string, []any) {
	var clauses []string
	var args []any

	for _, f := range q.Fields {
		switch f.Field {
		case FieldArtist:
			clauses = append(clauses, "artist = ? COLLATE NOCASE")
			args = append(args, f.Value)
		case FieldAlbum:
			clauses = append(clauses, "album_title = ? COLLATE NOCASE")
			args = append(args, f.Value)
		case FieldTitle:
			clauses = append(clauses, "title = ? COLLATE NOCASE")
			args = append(args, f.Value)
		case FieldFormat:
			clauses = append(clauses, "format = ? COLLATE NOCASE")
			args = append(args, f.Value)
		case FieldGenre:
			clauses = append(clauses,
				"EXISTS (SELECT 1 FROM json_each(tracks.genres) WHERE json_each.value = ? COLLATE NOCASE)")
			args = append(args, f.Value)
		}
	}

	for _, r := range q.Ranges {
		switch {
		case r.Start != nil && r.End != nil:
			clauses = append(clauses, "year BETWEEN ? AND ?")
			args = append(args, *r.Start, *r.End)
		case r.End != nil:
			clauses = append(clauses, "(year IS NULL OR year <= ?)")
			args = append(args, *r.End)
		case r.Start != nil:
			clauses = append(clauses, "(year IS NULL OR year >= ?)")
			args = append(args, *r.Start)
		}
	}

	if expr := q.FTSExpression(); expr != "" {
		clauses = append(clauses, "tracks.rowid IN (SELECT rowid FROM tracks_fts WHERE tracks_fts MATCH ?)")
		args = append(args, expr)
	}

	if len(clauses) == 0 {
		return "1=1", nil
	}
	return strings.Join(clauses, " AND "), args
}

// OrderBySQL returns the ORDER BY column list for a sort order, with id
// as the deterministic tiebreak. SortRandom returns id order; the caller
// shuffles the result.
func OrderBySQL(sort music.Sort) string {
	switch sort {
	case music.SortTitle:
		return "title COLLATE NOCASE, id"
	case music.SortAlbum:
		return "album_title COLLATE NOCASE, disc_number, track_number, id"
	case music.SortYearAsc:
		return "year ASC, album_title COLLATE NOCASE, disc_number, track_number, id"
	case music.SortYearDesc:
		return "year DESC, album_title COLLATE NOCASE, disc_number, track_number, id"
	case music.SortAddedAsc:
		return "added_at ASC, id"
	case music.SortAddedDesc:
		return "added_at DESC, id"
	case music.SortRandom:
		return "id"
	default: // music.SortArtist
		return "artist COLLATE NOCASE, album_title COLLATE NOCASE, disc_number, track_number, id"
	}
}
