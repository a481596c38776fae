// Package cassandra implements the store driver contract on top of gocql.
// gocql calls can block for the full driver timeout, so scenario and
// benchmark code dispatches this driver through the worker pool and awaits
// the future instead of calling it from the tick loop.
package cassandra

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"github.com/Sadoklaoo/distributed-database-tradeoff/pkg/driver"
)

// The harness only ever touches tables with the fixed benchmark schema.
var tableColumns = []string{"id", "name", "status", "type", "value", "timestamp"}

// Driver talks to the Cassandra ring.
type Driver struct {
	hosts    []string
	keyspace string
	logger   *zap.Logger

	mu      sync.Mutex
	session *gocql.Session
	cons    gocql.Consistency
}

// New creates an unconnected driver. Connect must be called before use.
func New(hosts []string, keyspace string, logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{
		hosts:    hosts,
		keyspace: keyspace,
		logger:   logger,
		cons:     gocql.One,
	}
}

func (d *Driver) Name() string { return driver.StoreCassandra }

// SetConsistency maps the benchmark consistency level onto a gocql
// consistency: "strong" uses QUORUM, anything else ONE.
func (d *Driver) SetConsistency(level string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if level == "strong" {
		d.cons = gocql.Quorum
		return
	}
	d.cons = gocql.One
}

func (d *Driver) consistency() gocql.Consistency {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cons
}

// Connect creates the session and bootstraps the keyspace.
func (d *Driver) Connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session != nil {
		return nil
	}

	cluster := gocql.NewCluster(d.hosts...)
	cluster.Timeout = 5 * time.Second
	cluster.ConnectTimeout = 5 * time.Second
	cluster.Consistency = d.cons

	session, err := cluster.CreateSession()
	if err != nil {
		return fmt.Errorf("cassandra connect: %w", err)
	}

	stmt := fmt.Sprintf(
		"CREATE KEYSPACE IF NOT EXISTS %s WITH replication = {'class': 'SimpleStrategy', 'replication_factor': 3}",
		d.keyspace)
	if err := session.Query(stmt).WithContext(ctx).Exec(); err != nil {
		session.Close()
		return fmt.Errorf("cassandra create keyspace %s: %w", d.keyspace, err)
	}

	d.session = session
	d.logger.Info("cassandra connected",
		zap.Strings("hosts", d.hosts), zap.String("keyspace", d.keyspace))
	return nil
}

func (d *Driver) getSession() (*gocql.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session == nil {
		return nil, errors.New("cassandra: not connected")
	}
	return d.session, nil
}

func (d *Driver) qualify(table string) string {
	return d.keyspace + "." + table
}

func (d *Driver) EnsureTable(ctx context.Context, table string) error {
	session, err := d.getSession()
	if err != nil {
		return err
	}
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id uuid PRIMARY KEY,
		name text,
		status text,
		type text,
		value double,
		timestamp text
	)`, d.qualify(table))
	if err := session.Query(stmt).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("cassandra create table %s: %w", table, err)
	}
	return nil
}

func (d *Driver) Insert(ctx context.Context, table string, rec driver.Record) error {
	session, err := d.getSession()
	if err != nil {
		return err
	}

	cols := make([]string, 0, len(tableColumns))
	values := make([]interface{}, 0, len(tableColumns))
	for _, col := range tableColumns {
		v, ok := rec[col]
		if !ok {
			continue
		}
		cols = append(cols, col)
		values = append(values, convertValue(col, v))
	}
	if len(cols) == 0 {
		return fmt.Errorf("cassandra insert into %s: no known columns in record", table)
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		d.qualify(table),
		strings.Join(cols, ", "),
		placeholders(len(cols)))
	if err := session.Query(stmt, values...).WithContext(ctx).Consistency(d.consistency()).Exec(); err != nil {
		return fmt.Errorf("cassandra insert into %s: %w", table, err)
	}
	return nil
}

func (d *Driver) Find(ctx context.Context, table string, filter driver.Filter) ([]driver.Record, error) {
	session, err := d.getSession()
	if err != nil {
		return nil, err
	}

	stmt := "SELECT * FROM " + d.qualify(table)
	var values []interface{}
	if len(filter) > 0 {
		keys := sortedKeys(filter)
		conds := make([]string, 0, len(keys))
		for _, k := range keys {
			conds = append(conds, k+" = ?")
			values = append(values, convertValue(k, filter[k]))
		}
		stmt += " WHERE " + strings.Join(conds, " AND ") + " ALLOW FILTERING"
	}

	iter := session.Query(stmt, values...).WithContext(ctx).Consistency(d.consistency()).Iter()
	var out []driver.Record
	for {
		row := map[string]interface{}{}
		if !iter.MapScan(row) {
			break
		}
		rec := make(driver.Record, len(row))
		for k, v := range row {
			if u, ok := v.(gocql.UUID); ok {
				rec[k] = u.String()
				continue
			}
			rec[k] = v
		}
		out = append(out, rec)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("cassandra find in %s: %w", table, err)
	}
	return out, nil
}

func (d *Driver) Update(ctx context.Context, table string, filter driver.Filter, patch driver.Patch) error {
	session, err := d.getSession()
	if err != nil {
		return err
	}
	if len(filter) == 0 || len(patch) == 0 {
		return errors.New("cassandra update: filter and patch are required")
	}

	var values []interface{}
	setKeys := sortedKeys(patch)
	sets := make([]string, 0, len(setKeys))
	for _, k := range setKeys {
		if k == "id" {
			// Primary key columns cannot be updated.
			continue
		}
		sets = append(sets, k+" = ?")
		values = append(values, convertValue(k, patch[k]))
	}
	if len(sets) == 0 {
		return errors.New("cassandra update: no updatable fields in patch")
	}

	whereKeys := sortedKeys(filter)
	wheres := make([]string, 0, len(whereKeys))
	for _, k := range whereKeys {
		wheres = append(wheres, k+" = ?")
		values = append(values, convertValue(k, filter[k]))
	}

	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		d.qualify(table), strings.Join(sets, ", "), strings.Join(wheres, " AND "))
	if err := session.Query(stmt, values...).WithContext(ctx).Consistency(d.consistency()).Exec(); err != nil {
		return fmt.Errorf("cassandra update in %s: %w", table, err)
	}
	return nil
}

func (d *Driver) Truncate(ctx context.Context, table string) error {
	session, err := d.getSession()
	if err != nil {
		return err
	}
	if err := session.Query("TRUNCATE " + d.qualify(table)).WithContext(ctx).Exec(); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unconfigured") {
			return nil
		}
		return fmt.Errorf("cassandra truncate %s: %w", table, err)
	}
	return nil
}

func (d *Driver) Close(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session != nil {
		d.session.Close()
		d.session = nil
	}
	return nil
}

// convertValue parses string UUIDs for the id column so callers can use the
// same string-keyed records for both stores.
func convertValue(col string, v interface{}) interface{} {
	if col != "id" {
		return v
	}
	s, ok := v.(string)
	if !ok {
		return v
	}
	u, err := gocql.ParseUUID(s)
	if err != nil {
		return v
	}
	return u
}

func placeholders(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "?"
	}
	return strings.Join(parts, ", ")
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
