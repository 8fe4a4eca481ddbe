// Package sqlobject materializes declarative DAO structs into live SQL
// objects. A declared type is a struct whose func fields carry statement
// tags; Materialize classifies every tagged field into a handler (query,
// update, batch, call, create, transaction wrapper or pass-through),
// caches that classification per type, and binds each field to a
// trampoline that routes calls through the cached handler table.
//
//	type SomethingDAO struct {
//	    sqlobject.Core
//	    sqlobject.Transactional
//
//	    Insert   func(ctx context.Context, s Something) (int64, error) `update:"INSERT INTO something (id, name) VALUES (:id, :name)"`
//	    FindByID func(ctx context.Context, id int) (Something, error)  `query:"SELECT id, name FROM something WHERE id = ?"`
//	}
//
//	dao, err := sqlobject.New[SomethingDAO](handle.OnDemand(db))
//
// Handlers obtain their execution handle lazily through the instance's
// supplier: a call that needs no database access never touches the
// supplier, and a call that does consults it exactly once. Construction
// never opens a connection.
package sqlobject
