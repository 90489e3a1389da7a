/*
Copyright The Coxswain Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package driver

import (
	"database/sql"
	"fmt"
	"sort"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	migrate "github.com/rubenv/sql-migrate"

	// Import pq for postgres dialect
	_ "github.com/lib/pq"

	"github.com/coxswain-io/coxswain/pkg/campaign"
	"github.com/coxswain-io/coxswain/pkg/engine"
)

var _ Driver = (*SQL)(nil)

const postgreSQLDialect = "postgres"

// SQLDriverName is the string name of this driver.
const SQLDriverName = "SQL"

const sqlCampaignTableName = "campaigns_v1"

const (
	sqlCampaignTableKeyColumn        = "key"
	sqlCampaignTableBodyColumn       = "body"
	sqlCampaignTableNameColumn       = "name"
	sqlCampaignTableStatusColumn     = "status"
	sqlCampaignTablePriorityColumn   = "priority"
	sqlCampaignTableOwnerColumn      = "owner"
	sqlCampaignTableCreatedAtColumn  = "createdAt"
	sqlCampaignTableModifiedAtColumn = "modifiedAt"
)

const sqlEngineTableName = "engine_releases_v1"

const (
	sqlEngineTableNameColumn       = "name"
	sqlEngineTableBodyColumn       = "body"
	sqlEngineTableStatusColumn     = "status"
	sqlEngineTableOwnerColumn      = "owner"
	sqlEngineTableModifiedAtColumn = "modifiedAt"
)

const sqlReuseTableName = "reuse_record_v1"

const (
	sqlReuseTableKeyColumn  = "key"
	sqlReuseTableBodyColumn = "body"
)

// SQL is the sql storage driver implementation.
type SQL struct {
	db               *sqlx.DB
	statementBuilder sq.StatementBuilderType

	Log func(string, ...interface{})
}

// Name returns the name of the driver.
func (s *SQL) Name() string {
	return SQLDriverName
}

// ensureDBSetup checks if the database is setup correctly, and migrates
// it if need be.
func (s *SQL) ensureDBSetup() error {
	migrations := &migrate.MemoryMigrationSource{
		Migrations: []*migrate.Migration{
			{
				Id: "init",
				Up: []string{
					fmt.Sprintf(`
						CREATE TABLE %s (
							%s VARCHAR(128) PRIMARY KEY,
							%s TEXT NOT NULL,
							%s VARCHAR(128) NOT NULL,
							%s VARCHAR(32) NOT NULL,
							%s VARCHAR(16) NOT NULL,
							%s VARCHAR(32) NOT NULL,
							%s INTEGER NOT NULL,
							%s INTEGER NOT NULL DEFAULT 0
						);
						CREATE INDEX ON %s (%s);
						CREATE INDEX ON %s (%s);
						CREATE INDEX ON %s (%s);
						CREATE INDEX ON %s (%s, %s);
						CREATE INDEX ON %s (%s, %s);

						CREATE TABLE %s (
							%s VARCHAR(90) PRIMARY KEY,
							%s TEXT NOT NULL,
							%s VARCHAR(32) NOT NULL,
							%s VARCHAR(32) NOT NULL,
							%s INTEGER NOT NULL DEFAULT 0
						);
						CREATE INDEX ON %s (%s);

						CREATE TABLE %s (
							%s VARCHAR(64) PRIMARY KEY,
							%s TEXT NOT NULL
						);
					`,
						sqlCampaignTableName,
						sqlCampaignTableKeyColumn,
						sqlCampaignTableBodyColumn,
						sqlCampaignTableNameColumn,
						sqlCampaignTableStatusColumn,
						sqlCampaignTablePriorityColumn,
						sqlCampaignTableOwnerColumn,
						sqlCampaignTableCreatedAtColumn,
						sqlCampaignTableModifiedAtColumn,
						sqlCampaignTableName, sqlCampaignTableNameColumn,
						sqlCampaignTableName, sqlCampaignTableOwnerColumn,
						sqlCampaignTableName, sqlCampaignTableStatusColumn,
						sqlCampaignTableName, sqlCampaignTablePriorityColumn, sqlCampaignTableCreatedAtColumn,
						sqlCampaignTableName, sqlCampaignTableStatusColumn, sqlCampaignTableCreatedAtColumn,
						sqlEngineTableName,
						sqlEngineTableNameColumn,
						sqlEngineTableBodyColumn,
						sqlEngineTableStatusColumn,
						sqlEngineTableOwnerColumn,
						sqlEngineTableModifiedAtColumn,
						sqlEngineTableName, sqlEngineTableStatusColumn,
						sqlReuseTableName,
						sqlReuseTableKeyColumn,
						sqlReuseTableBodyColumn,
					),
				},
				Down: []string{
					fmt.Sprintf(`DROP TABLE %s;`, sqlReuseTableName),
					fmt.Sprintf(`DROP TABLE %s;`, sqlEngineTableName),
					fmt.Sprintf(`DROP TABLE %s;`, sqlCampaignTableName),
				},
			},
		},
	}

	_, err := migrate.Exec(s.db.DB, postgreSQLDialect, migrations, migrate.Up)
	return err
}

// SQLCampaignWrapper describes how campaigns are stored in an SQL
// database. Only the body is authoritative; the other columns mirror the
// queryable label set.
type SQLCampaignWrapper struct {
	Key  string `db:"key"`
	Body string `db:"body"`

	Name       string `db:"name"`
	Status     string `db:"status"`
	Priority   string `db:"priority"`
	Owner      string `db:"owner"`
	CreatedAt  int    `db:"createdAt"`
	ModifiedAt int    `db:"modifiedAt"`
}

// SQLEngineReleaseWrapper describes how engine release records are
// stored in an SQL database.
type SQLEngineReleaseWrapper struct {
	Name string `db:"name"`
	Body string `db:"body"`

	Status     string `db:"status"`
	Owner      string `db:"owner"`
	ModifiedAt int    `db:"modifiedAt"`
}

// NewSQL initializes a new sql driver. Only the postgres dialect is
// supported.
func NewSQL(connectionString string, logger func(string, ...interface{})) (*SQL, error) {
	db, err := sqlx.Connect(postgreSQLDialect, connectionString)
	if err != nil {
		return nil, err
	}

	driver := &SQL{
		db:               db,
		Log:              logger,
		statementBuilder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}

	if err := driver.ensureDBSetup(); err != nil {
		return nil, err
	}

	return driver, nil
}

// Get returns the campaign named by key.
func (s *SQL) Get(key string) (*campaign.Campaign, error) {
	var record SQLCampaignWrapper

	qb := s.statementBuilder.
		Select(sqlCampaignTableBodyColumn).
		From(sqlCampaignTableName).
		Where(sq.Eq{sqlCampaignTableKeyColumn: key})
	query, args, err := qb.ToSql()
	if err != nil {
		s.Log("failed to build query: %v", err)
		return nil, err
	}

	// Get will return an error if the result is empty
	if err := s.db.Get(&record, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrCampaignNotFound
		}
		s.Log("got SQL error when getting campaign %s: %v", key, err)
		return nil, fmt.Errorf("sql: query failed: %v", err)
	}

	c, err := decodeCampaign(record.Body)
	if err != nil {
		s.Log("get: failed to decode data %q: %v", key, err)
		return nil, err
	}
	return c, nil
}

// List returns the list of all campaigns such that filter(campaign) == true.
func (s *SQL) List(filter func(*campaign.Campaign) bool) ([]*campaign.Campaign, error) {
	sb := s.statementBuilder.
		Select(sqlCampaignTableBodyColumn).
		From(sqlCampaignTableName).
		Where(sq.Eq{sqlCampaignTableOwnerColumn: OwnerLabelValue})

	query, args, err := sb.ToSql()
	if err != nil {
		s.Log("failed to build query: %v", err)
		return nil, err
	}

	var records = []SQLCampaignWrapper{}
	if err := s.db.Select(&records, query, args...); err != nil {
		s.Log("list: failed to list: %v", err)
		return nil, err
	}

	var campaigns []*campaign.Campaign
	for _, record := range records {
		c, err := decodeCampaign(record.Body)
		if err != nil {
			s.Log("list: failed to decode campaign: %v: %v", record, err)
			continue
		}
		if filter(c) {
			campaigns = append(campaigns, c)
		}
	}

	return campaigns, nil
}

// Query returns the set of campaigns that match the provided set of labels.
func (s *SQL) Query(labels map[string]string) ([]*campaign.Campaign, error) {
	sb := s.statementBuilder.
		Select(sqlCampaignTableBodyColumn).
		From(sqlCampaignTableName)

	keyFieldMap := map[string]string{
		"name":     sqlCampaignTableNameColumn,
		"owner":    sqlCampaignTableOwnerColumn,
		"status":   sqlCampaignTableStatusColumn,
		"priority": sqlCampaignTablePriorityColumn,
	}

	keys := make([]string, 0, len(labels))
	for key := range labels {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		dbField, ok := keyFieldMap[key]
		if !ok {
			s.Log("unknown label %s", key)
			return nil, fmt.Errorf("unknown label %s", key)
		}
		sb = sb.Where(sq.Eq{dbField: labels[key]})
	}

	query, args, err := sb.ToSql()
	if err != nil {
		s.Log("failed to build query: %v", err)
		return nil, err
	}

	var records = []SQLCampaignWrapper{}
	if err := s.db.Select(&records, query, args...); err != nil {
		s.Log("query: failed to query with labels: %v", err)
		return nil, err
	}

	if len(records) == 0 {
		return nil, ErrCampaignNotFound
	}

	var campaigns []*campaign.Campaign
	for _, record := range records {
		c, err := decodeCampaign(record.Body)
		if err != nil {
			s.Log("query: failed to decode campaign: %v: %v", record, err)
			continue
		}
		campaigns = append(campaigns, c)
	}

	return campaigns, nil
}

// Create creates a new campaign or returns ErrCampaignExists.
func (s *SQL) Create(key string, c *campaign.Campaign) error {
	body, err := encodeCampaign(c)
	if err != nil {
		s.Log("failed to encode campaign: %v", err)
		return err
	}

	transaction, err := s.db.Beginx()
	if err != nil {
		s.Log("failed to start SQL transaction: %v", err)
		return fmt.Errorf("error beginning transaction: %v", err)
	}

	insertQuery, args, err := s.statementBuilder.
		Insert(sqlCampaignTableName).
		Columns(
			sqlCampaignTableKeyColumn,
			sqlCampaignTableBodyColumn,
			sqlCampaignTableNameColumn,
			sqlCampaignTableStatusColumn,
			sqlCampaignTablePriorityColumn,
			sqlCampaignTableOwnerColumn,
			sqlCampaignTableCreatedAtColumn,
		).
		Values(
			key,
			body,
			c.ID,
			c.Status.String(),
			c.Priority.String(),
			OwnerLabelValue,
			int(time.Now().Unix()),
		).ToSql()
	if err != nil {
		defer transaction.Rollback()
		s.Log("failed to build insert query: %v", err)
		return err
	}

	if _, err := transaction.Exec(insertQuery, args...); err != nil {
		defer transaction.Rollback()

		selectQuery, args, buildErr := s.statementBuilder.
			Select(sqlCampaignTableKeyColumn).
			From(sqlCampaignTableName).
			Where(sq.Eq{sqlCampaignTableKeyColumn: key}).
			ToSql()
		if buildErr != nil {
			s.Log("failed to build select query: %v", buildErr)
			return err
		}

		var record SQLCampaignWrapper
		if scanErr := transaction.Get(&record, selectQuery, args...); scanErr == nil {
			s.Log("campaign %s already exists", key)
			return ErrCampaignExists
		}

		s.Log("failed to store campaign %s in SQL database: %v", key, err)
		return fmt.Errorf("error inserting a campaign: %v", err)
	}

	defer transaction.Commit()

	return nil
}

// Update updates a campaign or returns ErrCampaignNotFound.
func (s *SQL) Update(key string, c *campaign.Campaign) error {
	body, err := encodeCampaign(c)
	if err != nil {
		s.Log("failed to encode campaign: %v", err)
		return err
	}

	updateQuery, args, err := s.statementBuilder.
		Update(sqlCampaignTableName).
		Set(sqlCampaignTableBodyColumn, body).
		Set(sqlCampaignTableNameColumn, c.ID).
		Set(sqlCampaignTableStatusColumn, c.Status.String()).
		Set(sqlCampaignTablePriorityColumn, c.Priority.String()).
		Set(sqlCampaignTableModifiedAtColumn, int(time.Now().Unix())).
		Where(sq.Eq{sqlCampaignTableKeyColumn: key}).
		ToSql()
	if err != nil {
		s.Log("failed to build update query: %v", err)
		return err
	}

	result, err := s.db.Exec(updateQuery, args...)
	if err != nil {
		s.Log("failed to update campaign %s in SQL database: %v", key, err)
		return fmt.Errorf("error updating campaign: %v", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrCampaignNotFound
	}

	return nil
}

// Delete deletes a campaign or returns ErrCampaignNotFound.
func (s *SQL) Delete(key string) (*campaign.Campaign, error) {
	transaction, err := s.db.Beginx()
	if err != nil {
		s.Log("failed to start SQL transaction: %v", err)
		return nil, fmt.Errorf("error beginning transaction: %v", err)
	}

	selectQuery, args, err := s.statementBuilder.
		Select(sqlCampaignTableBodyColumn).
		From(sqlCampaignTableName).
		Where(sq.Eq{sqlCampaignTableKeyColumn: key}).
		ToSql()
	if err != nil {
		s.Log("failed to build select query: %v", err)
		return nil, err
	}

	var record SQLCampaignWrapper
	err = transaction.Get(&record, selectQuery, args...)
	if err != nil {
		s.Log("campaign %s not found: %v", key, err)
		return nil, ErrCampaignNotFound
	}

	c, err := decodeCampaign(record.Body)
	if err != nil {
		s.Log("failed to decode data %q: %v", key, err)
		transaction.Rollback()
		return nil, err
	}
	defer transaction.Commit()

	deleteQuery, args, err := s.statementBuilder.
		Delete(sqlCampaignTableName).
		Where(sq.Eq{sqlCampaignTableKeyColumn: key}).
		ToSql()
	if err != nil {
		s.Log("failed to build delete query: %v", err)
		return nil, err
	}

	_, err = transaction.Exec(deleteQuery, args...)
	return c, err
}

// PutRelease upserts an engine release record by name.
func (s *SQL) PutRelease(rel *engine.Release) error {
	if rel.Name == "" {
		return ErrInvalidKey
	}
	body, err := encodeEngineRelease(rel)
	if err != nil {
		s.Log("failed to encode engine release: %v", err)
		return err
	}

	transaction, err := s.db.Beginx()
	if err != nil {
		s.Log("failed to start SQL transaction: %v", err)
		return fmt.Errorf("error beginning transaction: %v", err)
	}

	updateQuery, args, err := s.statementBuilder.
		Update(sqlEngineTableName).
		Set(sqlEngineTableBodyColumn, body).
		Set(sqlEngineTableStatusColumn, rel.Status.String()).
		Set(sqlEngineTableModifiedAtColumn, int(time.Now().Unix())).
		Where(sq.Eq{sqlEngineTableNameColumn: rel.Name}).
		ToSql()
	if err != nil {
		defer transaction.Rollback()
		s.Log("failed to build update query: %v", err)
		return err
	}

	result, err := transaction.Exec(updateQuery, args...)
	if err != nil {
		defer transaction.Rollback()
		s.Log("failed to update engine release %s: %v", rel.Name, err)
		return fmt.Errorf("error updating engine release: %v", err)
	}

	if n, err := result.RowsAffected(); err == nil && n == 0 {
		insertQuery, args, buildErr := s.statementBuilder.
			Insert(sqlEngineTableName).
			Columns(
				sqlEngineTableNameColumn,
				sqlEngineTableBodyColumn,
				sqlEngineTableStatusColumn,
				sqlEngineTableOwnerColumn,
				sqlEngineTableModifiedAtColumn,
			).
			Values(
				rel.Name,
				body,
				rel.Status.String(),
				OwnerLabelValue,
				int(time.Now().Unix()),
			).ToSql()
		if buildErr != nil {
			defer transaction.Rollback()
			s.Log("failed to build insert query: %v", buildErr)
			return buildErr
		}
		if _, err := transaction.Exec(insertQuery, args...); err != nil {
			defer transaction.Rollback()
			s.Log("failed to store engine release %s: %v", rel.Name, err)
			return fmt.Errorf("error inserting an engine release: %v", err)
		}
	}

	defer transaction.Commit()

	return nil
}

// GetRelease returns the engine release record named by name.
func (s *SQL) GetRelease(name string) (*engine.Release, error) {
	var record SQLEngineReleaseWrapper

	query, args, err := s.statementBuilder.
		Select(sqlEngineTableBodyColumn).
		From(sqlEngineTableName).
		Where(sq.Eq{sqlEngineTableNameColumn: name}).
		ToSql()
	if err != nil {
		s.Log("failed to build query: %v", err)
		return nil, err
	}

	if err := s.db.Get(&record, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrReleaseNotFound
		}
		s.Log("got SQL error when getting engine release %s: %v", name, err)
		return nil, fmt.Errorf("sql: query failed: %v", err)
	}

	return decodeEngineRelease(record.Body)
}

// DeleteRelease removes an engine release record.
func (s *SQL) DeleteRelease(name string) error {
	deleteQuery, args, err := s.statementBuilder.
		Delete(sqlEngineTableName).
		Where(sq.Eq{sqlEngineTableNameColumn: name}).
		ToSql()
	if err != nil {
		s.Log("failed to build delete query: %v", err)
		return err
	}

	result, err := s.db.Exec(deleteQuery, args...)
	if err != nil {
		s.Log("failed to delete engine release %s: %v", name, err)
		return fmt.Errorf("error deleting engine release: %v", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrReleaseNotFound
	}
	return nil
}

// ListReleases returns every engine release record.
func (s *SQL) ListReleases() ([]*engine.Release, error) {
	query, args, err := s.statementBuilder.
		Select(sqlEngineTableBodyColumn).
		From(sqlEngineTableName).
		Where(sq.Eq{sqlEngineTableOwnerColumn: OwnerLabelValue}).
		ToSql()
	if err != nil {
		s.Log("failed to build query: %v", err)
		return nil, err
	}

	var records = []SQLEngineReleaseWrapper{}
	if err := s.db.Select(&records, query, args...); err != nil {
		s.Log("list releases: failed to list: %v", err)
		return nil, err
	}

	releases := make([]*engine.Release, 0, len(records))
	for _, record := range records {
		rel, err := decodeEngineRelease(record.Body)
		if err != nil {
			s.Log("list releases: failed to decode release: %v", err)
			continue
		}
		releases = append(releases, rel)
	}
	return releases, nil
}

// PutReuse stores the singleton reuse record.
func (s *SQL) PutReuse(rec *engine.ReuseRecord) error {
	body, err := encodeReuse(rec)
	if err != nil {
		s.Log("failed to encode reuse record: %v", err)
		return err
	}

	transaction, err := s.db.Beginx()
	if err != nil {
		s.Log("failed to start SQL transaction: %v", err)
		return fmt.Errorf("error beginning transaction: %v", err)
	}

	updateQuery, args, err := s.statementBuilder.
		Update(sqlReuseTableName).
		Set(sqlReuseTableBodyColumn, body).
		Where(sq.Eq{sqlReuseTableKeyColumn: reuseKeyName}).
		ToSql()
	if err != nil {
		defer transaction.Rollback()
		s.Log("failed to build update query: %v", err)
		return err
	}

	result, err := transaction.Exec(updateQuery, args...)
	if err != nil {
		defer transaction.Rollback()
		s.Log("failed to update reuse record: %v", err)
		return fmt.Errorf("error updating reuse record: %v", err)
	}

	if n, err := result.RowsAffected(); err == nil && n == 0 {
		insertQuery, args, buildErr := s.statementBuilder.
			Insert(sqlReuseTableName).
			Columns(sqlReuseTableKeyColumn, sqlReuseTableBodyColumn).
			Values(reuseKeyName, body).
			ToSql()
		if buildErr != nil {
			defer transaction.Rollback()
			s.Log("failed to build insert query: %v", buildErr)
			return buildErr
		}
		if _, err := transaction.Exec(insertQuery, args...); err != nil {
			defer transaction.Rollback()
			s.Log("failed to store reuse record: %v", err)
			return fmt.Errorf("error inserting a reuse record: %v", err)
		}
	}

	defer transaction.Commit()

	return nil
}

// GetReuse returns the singleton reuse record.
func (s *SQL) GetReuse() (*engine.ReuseRecord, error) {
	var record struct {
		Body string `db:"body"`
	}

	query, args, err := s.statementBuilder.
		Select(sqlReuseTableBodyColumn).
		From(sqlReuseTableName).
		Where(sq.Eq{sqlReuseTableKeyColumn: reuseKeyName}).
		ToSql()
	if err != nil {
		s.Log("failed to build query: %v", err)
		return nil, err
	}

	if err := s.db.Get(&record, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrReuseNotFound
		}
		s.Log("got SQL error when getting reuse record: %v", err)
		return nil, fmt.Errorf("sql: query failed: %v", err)
	}

	return decodeReuse(record.Body)
}

// ClearReuse forgets the singleton reuse record. A missing record is
// not an error.
func (s *SQL) ClearReuse() error {
	deleteQuery, args, err := s.statementBuilder.
		Delete(sqlReuseTableName).
		Where(sq.Eq{sqlReuseTableKeyColumn: reuseKeyName}).
		ToSql()
	if err != nil {
		s.Log("failed to build delete query: %v", err)
		return err
	}

	if _, err := s.db.Exec(deleteQuery, args...); err != nil {
		s.Log("failed to delete reuse record: %v", err)
		return fmt.Errorf("error deleting reuse record: %v", err)
	}
	return nil
}
