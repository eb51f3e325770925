package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"boxbluebook/internal/catalog"
)

const (
	cigarColumns = `c.id, c.line_id, l.brand_id, b.name, l.name, c.name, c.slug, c.full_name, c.vitola,
        c.length_inches::text, c.ring_gauge, c.box_count, c.msrp_per_cigar::text, c.msrp_per_box::text,
        c.wrapper, c.strength, c.image_url, c.is_limited_edition, c.is_discontinued`

	cigarJoins = `FROM cigars c
    JOIN lines l ON l.id = c.line_id
    JOIN brands b ON b.id = l.brand_id`

	getCigarSQL = `SELECT ` + cigarColumns + `
    ` + cigarJoins + `
    WHERE c.id = $1;`

	relatedCigarsSQL = `SELECT ` + cigarColumns + `
    ` + cigarJoins + `
    WHERE c.line_id = $1 AND c.id <> $2 AND c.is_active
    ORDER BY c.name
    LIMIT $3;`

	listActiveCigarsSQL = `SELECT ` + cigarColumns + `
    ` + cigarJoins + `
    WHERE c.is_active
    ORDER BY b.name, l.name, c.name;`

	inactiveCigarIDsSQL = `SELECT id FROM cigars WHERE NOT is_active ORDER BY id;`

	searchCigarsSQL = `SELECT ` + cigarColumns + `
    ` + cigarJoins + `
    WHERE c.is_active AND (c.full_name ILIKE $1 OR c.vitola ILIKE $1)
    ORDER BY c.full_name
    LIMIT $2;`

	listBrandsSQL = `SELECT b.id, b.name, b.slug, b.country_of_origin, b.logo_url, b.is_active,
        CASE WHEN $1 THEN (
            SELECT COUNT(*) FROM cigars c JOIN lines l ON l.id = c.line_id
            WHERE l.brand_id = b.id AND c.is_active
        ) END
    FROM brands b
    WHERE b.is_active
    ORDER BY b.name;`

	searchBrandsSQL = `SELECT id, name, slug, country_of_origin, logo_url, is_active, NULL::bigint
    FROM brands
    WHERE is_active AND name ILIKE $1
    ORDER BY name
    LIMIT $2;`

	lineColumns = `l.id, l.brand_id, b.name, l.name, l.slug, l.strength, l.is_limited_edition, l.is_discontinued`

	listLinesSQL = `SELECT ` + lineColumns + `
    FROM lines l JOIN brands b ON b.id = l.brand_id
    WHERE l.is_active
    ORDER BY b.name, l.name;`

	searchLinesSQL = `SELECT ` + lineColumns + `
    FROM lines l JOIN brands b ON b.id = l.brand_id
    WHERE l.is_active AND l.name ILIKE $1
    ORDER BY l.name
    LIMIT $2;`

	upsertBrandSQL = `INSERT INTO brands (name, slug, country_of_origin)
    VALUES ($1, $2, $3)
    ON CONFLICT (slug) DO UPDATE
    SET name              = EXCLUDED.name,
        country_of_origin = COALESCE(EXCLUDED.country_of_origin, brands.country_of_origin),
        updated_at        = now()
    RETURNING id;`

	upsertLineSQL = `INSERT INTO lines (brand_id, name, slug, strength)
    VALUES ($1, $2, $3, $4)
    ON CONFLICT (brand_id, slug) DO UPDATE
    SET name     = EXCLUDED.name,
        strength = COALESCE(EXCLUDED.strength, lines.strength)
    RETURNING id;`

	upsertCigarSQL = `INSERT INTO cigars (
        line_id, name, slug, full_name, vitola, length_inches, ring_gauge, box_count,
        msrp_per_cigar, msrp_per_box, wrapper, strength
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
    )
    ON CONFLICT (line_id, slug) DO UPDATE
    SET name           = EXCLUDED.name,
        full_name      = EXCLUDED.full_name,
        vitola         = EXCLUDED.vitola,
        length_inches  = COALESCE(EXCLUDED.length_inches, cigars.length_inches),
        ring_gauge     = COALESCE(EXCLUDED.ring_gauge, cigars.ring_gauge),
        box_count      = COALESCE(EXCLUDED.box_count, cigars.box_count),
        msrp_per_cigar = COALESCE(EXCLUDED.msrp_per_cigar, cigars.msrp_per_cigar),
        msrp_per_box   = COALESCE(EXCLUDED.msrp_per_box, cigars.msrp_per_box),
        wrapper        = COALESCE(EXCLUDED.wrapper, cigars.wrapper),
        strength       = COALESCE(EXCLUDED.strength, cigars.strength),
        updated_at     = now()
    RETURNING id, (xmax = 0);`
)

// GetCigar loads one cigar with its line and brand names.
func (s *Store) GetCigar(ctx context.Context, id uuid.UUID) (catalog.Cigar, error) {
	db, err := s.getDB()
	if err != nil {
		return catalog.Cigar{}, err
	}
	c, err := scanCigar(db.QueryRow(ctx, getCigarSQL, id))
	if err != nil {
		return catalog.Cigar{}, notFound(err, fmt.Sprintf("get cigar %s", id))
	}
	return c, nil
}

// CigarIdentity loads the comparison header of a cigar.
func (s *Store) CigarIdentity(ctx context.Context, id uuid.UUID) (catalog.Identity, error) {
	c, err := s.GetCigar(ctx, id)
	if err != nil {
		return catalog.Identity{}, err
	}
	return c.Identity(), nil
}

// ListCigars returns one page of active cigars matching f, plus the total match count.
func (s *Store) ListCigars(ctx context.Context, f catalog.Filter) (catalog.Page, error) {
	query, args := buildListCigarsSQL(f)

	db, err := s.getDB()
	if err != nil {
		return catalog.Page{}, err
	}
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return catalog.Page{}, fmt.Errorf("list cigars: %w", err)
	}
	defer rows.Close()

	var (
		cigars = make([]catalog.Cigar, 0, f.Limit)
		total  int64
	)
	for rows.Next() {
		c, err := scanCigar(&countingRow{row: rows, total: &total})
		if err != nil {
			return catalog.Page{}, fmt.Errorf("list cigars: %w", err)
		}
		cigars = append(cigars, c)
	}
	if err := rows.Err(); err != nil {
		return catalog.Page{}, fmt.Errorf("list cigars: %w", err)
	}
	return catalog.NewPage(cigars, int(total), f), nil
}

func buildListCigarsSQL(f catalog.Filter) (string, []any) {
	where := []string{"c.is_active"}
	args := make([]any, 0, 6)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Query != "" {
		p := arg(likePattern(f.Query))
		where = append(where, fmt.Sprintf("(c.full_name ILIKE %s OR c.vitola ILIKE %s)", p, p))
	}
	if f.BrandID != nil {
		where = append(where, "l.brand_id = "+arg(*f.BrandID))
	}
	if f.Strength != "" {
		where = append(where, "c.strength = "+arg(f.Strength))
	}
	if f.Limited {
		where = append(where, "c.is_limited_edition")
	}

	order := "c.full_name"
	if f.SortBy == catalog.SortPrice {
		order = "c.msrp_per_cigar"
	}
	dir := "ASC"
	if !f.Ascending {
		dir = "DESC"
	}

	var b strings.Builder
	b.WriteString("SELECT " + cigarColumns + ", COUNT(*) OVER ()\n    " + cigarJoins + "\n")
	b.WriteString("    WHERE " + strings.Join(where, " AND ") + "\n")
	fmt.Fprintf(&b, "    ORDER BY %s %s NULLS LAST, c.id\n", order, dir)
	fmt.Fprintf(&b, "    LIMIT %s OFFSET %s;", arg(f.Limit), arg(f.Offset()))
	return b.String(), args
}

// countingRow appends the window count column to a cigar scan.
type countingRow struct {
	row   pgx.Row
	total *int64
}

func (r *countingRow) Scan(dest ...any) error {
	return r.row.Scan(append(dest, r.total)...)
}

// RelatedCigars lists other active cigars of the same line.
func (s *Store) RelatedCigars(ctx context.Context, c catalog.Cigar, limit int) ([]catalog.Cigar, error) {
	return s.queryCigars(ctx, "related cigars", relatedCigarsSQL, c.LineID, c.ID, limit)
}

// ListActiveCigars lists every active cigar.
func (s *Store) ListActiveCigars(ctx context.Context) ([]catalog.Cigar, error) {
	return s.queryCigars(ctx, "list cigars", listActiveCigarsSQL)
}

// ListInactiveCigarIDs lists the ids of retired cigars.
func (s *Store) ListInactiveCigarIDs(ctx context.Context) ([]uuid.UUID, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(ctx, inactiveCigarIDsSQL)
	if err != nil {
		return nil, fmt.Errorf("query inactive cigars: %w", err)
	}
	defer rows.Close()

	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan cigar id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inactive cigars: %w", err)
	}
	return ids, nil
}

// SearchCigars matches full name or vitola by substring.
func (s *Store) SearchCigars(ctx context.Context, query string, limit int) ([]catalog.Cigar, error) {
	return s.queryCigars(ctx, "search cigars", searchCigarsSQL, likePattern(query), limit)
}

// ListBrands lists active brands, optionally with their active cigar counts.
func (s *Store) ListBrands(ctx context.Context, includeCount bool) ([]catalog.Brand, error) {
	return s.queryBrands(ctx, "list brands", listBrandsSQL, includeCount)
}

// SearchBrands matches brand names by substring.
func (s *Store) SearchBrands(ctx context.Context, query string, limit int) ([]catalog.Brand, error) {
	return s.queryBrands(ctx, "search brands", searchBrandsSQL, likePattern(query), limit)
}

// ListLines lists active lines.
func (s *Store) ListLines(ctx context.Context) ([]catalog.Line, error) {
	return s.queryLines(ctx, "list lines", listLinesSQL)
}

// SearchLines matches line names by substring.
func (s *Store) SearchLines(ctx context.Context, query string, limit int) ([]catalog.Line, error) {
	return s.queryLines(ctx, "search lines", searchLinesSQL, likePattern(query), limit)
}

// UpsertCatalogEntry writes a brand, line and cigar in one transaction, keyed by slugs. It reports
// whether the cigar row was newly created.
func (s *Store) UpsertCatalogEntry(ctx context.Context, e catalog.Entry) (uuid.UUID, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return uuid.Nil, false, err
	}

	var (
		cigarID uuid.UUID
		created bool
	)
	err = pgx.BeginFunc(ctx, db, func(tx pgx.Tx) error {
		var brandID, lineID uuid.UUID
		if err := tx.QueryRow(ctx, upsertBrandSQL, e.Brand, catalog.Slugify(e.Brand), e.Country).Scan(&brandID); err != nil {
			return fmt.Errorf("upsert brand %q: %w", e.Brand, err)
		}
		if err := tx.QueryRow(ctx, upsertLineSQL, brandID, e.Line, catalog.Slugify(e.Line), e.Strength).Scan(&lineID); err != nil {
			return fmt.Errorf("upsert line %q: %w", e.Line, err)
		}
		if err := tx.QueryRow(ctx, upsertCigarSQL,
			lineID,
			e.Name,
			catalog.Slugify(e.Name),
			catalog.FullName(e.Brand, e.Line, e.Name),
			e.Vitola,
			decArg(e.LengthInches),
			e.RingGauge,
			e.BoxCount,
			decArg(e.MSRPPerCigar),
			decArg(e.MSRPPerBox),
			e.Wrapper,
			e.Strength,
		).Scan(&cigarID, &created); err != nil {
			return fmt.Errorf("upsert cigar %q: %w", e.Name, err)
		}
		return nil
	})
	if err != nil {
		return uuid.Nil, false, err
	}
	return cigarID, created, nil
}

func (s *Store) queryCigars(ctx context.Context, op, query string, args ...any) ([]catalog.Cigar, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	out := make([]catalog.Cigar, 0)
	for rows.Next() {
		c, err := scanCigar(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

func (s *Store) queryBrands(ctx context.Context, op, query string, args ...any) ([]catalog.Brand, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	out := make([]catalog.Brand, 0)
	for rows.Next() {
		var (
			b     catalog.Brand
			count *int64
		)
		if err := rows.Scan(&b.ID, &b.Name, &b.Slug, &b.Country, &b.LogoURL, &b.IsActive, &count); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if count != nil {
			n := int(*count)
			b.CigarCount = &n
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

func (s *Store) queryLines(ctx context.Context, op, query string, args ...any) ([]catalog.Line, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	out := make([]catalog.Line, 0)
	for rows.Next() {
		var l catalog.Line
		if err := rows.Scan(&l.ID, &l.BrandID, &l.BrandName, &l.Name, &l.Slug, &l.Strength, &l.IsLimitedEdition, &l.IsDiscontinued); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

func scanCigar(row pgx.Row) (catalog.Cigar, error) {
	var (
		c                           catalog.Cigar
		length, msrpSingle, msrpBox *string
	)
	if err := row.Scan(
		&c.ID,
		&c.LineID,
		&c.BrandID,
		&c.BrandName,
		&c.LineName,
		&c.Name,
		&c.Slug,
		&c.FullName,
		&c.Vitola,
		&length,
		&c.RingGauge,
		&c.BoxCount,
		&msrpSingle,
		&msrpBox,
		&c.Wrapper,
		&c.Strength,
		&c.ImageURL,
		&c.IsLimitedEdition,
		&c.IsDiscontinued,
	); err != nil {
		return catalog.Cigar{}, err
	}

	var err error
	if c.LengthInches, err = parseOptDec(length, "length_inches"); err != nil {
		return catalog.Cigar{}, err
	}
	if c.MSRPPerCigar, err = parseOptDec(msrpSingle, "msrp_per_cigar"); err != nil {
		return catalog.Cigar{}, err
	}
	if c.MSRPPerBox, err = parseOptDec(msrpBox, "msrp_per_box"); err != nil {
		return catalog.Cigar{}, err
	}
	return c, nil
}

// likePattern wraps a user query for ILIKE, escaping wildcards.
func likePattern(q string) string {
	r := []rune{}
	for _, ch := range q {
		if ch == '%' || ch == '_' || ch == '\\' {
			r = append(r, '\\')
		}
		r = append(r, ch)
	}
	return "%" + string(r) + "%"
}
