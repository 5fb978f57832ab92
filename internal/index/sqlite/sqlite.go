// Package sqlite implements index.Index on a sqlite (or libsql) database.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"slices"
	"time"

	"fandom-vis/internal/archive"
	"fandom-vis/internal/components/assert"
	"fandom-vis/internal/components/telemetry"
	"fandom-vis/internal/index"
	"fandom-vis/pkg/migrations"
)

//go:embed schema.sql
var Schema string

const (
	report_ensure            = "ensure"
	report_upsert            = "upsert"
	report_frequencies       = "frequencies"
	report_monthly_histogram = "monthly-histogram"
	report_significant_tags  = "significant-tags"
)

type Index struct {
	db  *sql.DB
	tel telemetry.API
}

var _ index.Index = (*Index)(nil)

// Open opens the database at path, see migrations.OpenDB for what path may be.
func Open(path string, tel telemetry.API) (*Index, error) {
	assert.NotEmptyStr(path)
	db, err := migrations.OpenDB(path)
	if err != nil {
		return nil, err
	}
	return New(db, tel), nil
}

func New(db *sql.DB, tel telemetry.API) *Index {
	assert.NotNil(db)
	assert.NotNil(tel)
	return &Index{
		db:  db,
		tel: telemetry.NewScopedAPI("sqlite", tel),
	}
}

func (i *Index) Ensure(ctx context.Context) error {
	err := migrations.Apply(ctx, i.db, Schema)
	if err != nil {
		i.tel.ReportBroken(report_ensure, err)
		return err
	}
	return nil
}

func (i *Index) Upsert(ctx context.Context, works []archive.Work) error {
	if len(works) == 0 {
		return nil
	}

	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		i.tel.ReportBroken(report_upsert, err)
		return err
	}
	defer tx.Rollback()

	for _, work := range works {
		err = upsertWork(ctx, tx, work)
		if err != nil {
			i.tel.ReportBroken(report_upsert, work.Id, err)
			return fmt.Errorf("upsert work %s: %w", work.Id, err)
		}
	}

	err = tx.Commit()
	if err != nil {
		i.tel.ReportBroken(report_upsert, err)
		return err
	}
	return nil
}

func upsertWork(ctx context.Context, tx *sql.Tx, work archive.Work) error {
	var author sql.NullString
	if work.Author != nil {
		author = sql.NullString{String: *work.Author, Valid: true}
	}

	_, err := tx.ExecContext(
		ctx,
		`insert into works(id, title, author, date, language, words, kudos, hits)
		values (?, ?, ?, ?, ?, ?, ?, ?)
		on conflict(id) do update set
			title = excluded.title,
			author = excluded.author,
			date = excluded.date,
			language = excluded.language,
			words = excluded.words,
			kudos = excluded.kudos,
			hits = excluded.hits`,
		work.Id, work.Title, author, work.Date.String(),
		work.Language, work.Words, work.Kudos, work.Hits,
	)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, "delete from work_tags where work_id = ?", work.Id)
	if err != nil {
		return err
	}
	for _, kind := range index.TagKinds() {
		for position, tag := range kind.Tags(work) {
			_, err = tx.ExecContext(
				ctx,
				"insert into work_tags(work_id, kind, position, tag) values (?, ?, ?, ?)",
				work.Id, kind.Field(), position, tag,
			)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// Get returns the stored work with the given id.
func (i *Index) Get(ctx context.Context, id string) (archive.Work, error) {
	var work archive.Work
	var author sql.NullString
	var date string
	err := i.db.QueryRowContext(
		ctx,
		"select id, title, author, date, language, words, kudos, hits from works where id = ?",
		id,
	).Scan(&work.Id, &work.Title, &author, &date, &work.Language, &work.Words, &work.Kudos, &work.Hits)
	if err != nil {
		return archive.Work{}, err
	}
	if author.Valid {
		work.Author = &author.String
	}
	work.Date, err = archive.ParseDate("2006-01-02", date)
	if err != nil {
		return archive.Work{}, fmt.Errorf("work %s: date: %w", id, err)
	}

	rows, err := i.db.QueryContext(
		ctx,
		"select kind, tag from work_tags where work_id = ? order by kind, position",
		id,
	)
	if err != nil {
		return archive.Work{}, err
	}
	defer rows.Close()

	work.Relationships = []string{}
	work.Characters = []string{}
	work.Freeforms = []string{}
	for rows.Next() {
		var field, tag string
		err = rows.Scan(&field, &tag)
		if err != nil {
			return archive.Work{}, err
		}
		switch field {
		case index.TAG_RELATIONSHIP.Field():
			work.Relationships = append(work.Relationships, tag)
		case index.TAG_CHARACTER.Field():
			work.Characters = append(work.Characters, tag)
		case index.TAG_FREEFORM.Field():
			work.Freeforms = append(work.Freeforms, tag)
		}
	}
	return work, rows.Err()
}

func (i *Index) frequencies(ctx context.Context, query index.TermsQuery) ([]index.Bucket, error) {
	rows, err := i.db.QueryContext(
		ctx,
		`select tag, count(distinct work_id) as n
		from work_tags
		where kind = ?
		group by tag
		having n >= ?
		order by n desc, tag asc
		limit ?`,
		query.Kind.Field(), max(query.MinDocCount, 1), query.Size,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []index.Bucket{}
	for rows.Next() {
		var b index.Bucket
		err = rows.Scan(&b.Key, &b.Count)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (i *Index) Frequencies(ctx context.Context, query index.TermsQuery) ([]index.Bucket, error) {
	out, err := i.frequencies(ctx, query)
	if err != nil {
		i.tel.ReportBroken(report_frequencies, err)
		return nil, err
	}
	return out, nil
}

func (i *Index) MonthlyHistogram(ctx context.Context, query index.HistogramQuery) ([]index.Series, error) {
	top, err := i.frequencies(ctx, index.TermsQuery{Kind: query.Kind, Size: query.Size})
	if err != nil {
		i.tel.ReportBroken(report_monthly_histogram, err)
		return nil, err
	}

	out := make([]index.Series, 0, len(top))
	for _, b := range top {
		months, err := i.months(ctx, query.Kind, b.Key)
		if err != nil {
			i.tel.ReportBroken(report_monthly_histogram, b.Key, err)
			return nil, err
		}
		out = append(out, index.Series{
			Key:    b.Key,
			Count:  b.Count,
			Months: months,
		})
	}
	return out, nil
}

// months returns the contiguous monthly counts of works carrying tag, from the
// month of the first work to the month of the last one.
func (i *Index) months(ctx context.Context, kind index.TagKind, tag string) ([]index.Month, error) {
	rows, err := i.db.QueryContext(
		ctx,
		`select substr(w.date, 1, 7) as month, count(distinct w.id)
		from works w
		join work_tags t on t.work_id = w.id
		where t.kind = ? and t.tag = ?
		group by month
		order by month`,
		kind.Field(), tag,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[time.Time]uint64)
	var first, last time.Time
	for rows.Next() {
		var month string
		var count uint64
		err = rows.Scan(&month, &count)
		if err != nil {
			return nil, err
		}
		start, err := time.Parse("2006-01", month)
		if err != nil {
			return nil, fmt.Errorf("month %q: %w", month, err)
		}
		if first.IsZero() {
			first = start
		}
		last = start
		counts[start] = count
	}
	err = rows.Err()
	if err != nil {
		return nil, err
	}

	out := []index.Month{}
	if first.IsZero() {
		return out, nil
	}
	for m := first; !m.After(last); m = m.AddDate(0, 1, 0) {
		out = append(out, index.Month{Start: m, Count: counts[m]})
	}
	return out, nil
}

func (i *Index) SignificantTags(ctx context.Context, query index.SignificantQuery) ([]index.SignificantGroup, error) {
	out, err := i.significantTags(ctx, query)
	if err != nil {
		i.tel.ReportBroken(report_significant_tags, err)
		return nil, err
	}
	return out, nil
}

func (i *Index) significantTags(ctx context.Context, query index.SignificantQuery) ([]index.SignificantGroup, error) {
	groups, err := i.frequencies(ctx, index.TermsQuery{
		Kind:        query.GroupKind,
		Size:        query.GroupSize,
		MinDocCount: query.MinDocCount,
	})
	if err != nil {
		return nil, err
	}

	var total uint64
	err = i.db.QueryRowContext(ctx, "select count(*) from works").Scan(&total)
	if err != nil {
		return nil, err
	}

	out := make([]index.SignificantGroup, 0, len(groups))
	for _, group := range groups {
		tags, err := i.groupTags(ctx, query, group, total)
		if err != nil {
			return nil, fmt.Errorf("group %q: %w", group.Key, err)
		}
		out = append(out, index.SignificantGroup{
			Key:   group.Key,
			Count: group.Count,
			Tags:  tags,
		})
	}
	return out, nil
}

func (i *Index) groupTags(ctx context.Context, query index.SignificantQuery, group index.Bucket, total uint64) ([]index.SignificantTag, error) {
	rows, err := i.db.QueryContext(
		ctx,
		`select t.tag, count(distinct t.work_id) as fg, (
			select count(distinct b.work_id) from work_tags b
			where b.kind = t.kind and b.tag = t.tag
		) as bg
		from work_tags t
		where t.kind = ? and t.work_id in (
			select g.work_id from work_tags g where g.kind = ? and g.tag = ?
		)
		group by t.tag
		having fg >= ?`,
		query.Kind.Field(), query.GroupKind.Field(), group.Key, index.SIGNIFICANT_MIN_DOC_COUNT,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tags := []index.SignificantTag{}
	for rows.Next() {
		var tag string
		var fg, bg uint64
		err = rows.Scan(&tag, &fg, &bg)
		if err != nil {
			return nil, err
		}
		score := jlh(fg, group.Count, bg, total)
		if score <= 0 {
			continue
		}
		tags = append(tags, index.SignificantTag{Key: tag, Count: fg, Score: score})
	}
	err = rows.Err()
	if err != nil {
		return nil, err
	}

	slices.SortFunc(tags, func(a, b index.SignificantTag) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		if a.Key < b.Key {
			return -1
		}
		if a.Key > b.Key {
			return 1
		}
		return 0
	})
	if len(tags) > query.Size {
		tags = tags[:query.Size]
	}
	return tags, nil
}

// jlh scores how much more common a tag is in a subset of works than in all of
// them: the absolute change in probability times the relative change.
func jlh(subsetFreq, subsetSize, supersetFreq, supersetSize uint64) float64 {
	if subsetSize == 0 || supersetSize == 0 || supersetFreq == 0 {
		return 0
	}
	fg := float64(subsetFreq) / float64(subsetSize)
	bg := float64(supersetFreq) / float64(supersetSize)
	if fg <= bg {
		return 0
	}
	return (fg - bg) * (fg / bg)
}

func (i *Index) Close() error {
	return i.db.Close()
}
