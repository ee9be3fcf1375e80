package counter

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	c "github.com/d0ngw/quota/common"
	"github.com/d0ngw/quota/db"
)

const sqlForUpdate = " FOR UPDATE"

// MySQL的锁等待超时与死锁错误码
const (
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
)

// DBManager implements Manager against a shared MySQL table. Every mutation
// runs in one transaction and locks the counter row with SELECT ... FOR
// UPDATE,which serializes writers of the same counter across all the
// processes sharing the table. Tallies are never cached in memory.
type DBManager struct {
	pool *db.Pool
	loc  *time.Location
}

// NewDBManager create DBManager,loc为nil时使用本地时区
func NewDBManager(pool *db.Pool, loc *time.Location) (*DBManager, error) {
	if c.HasNil(pool) {
		return nil, errors.New("pool must not be nil")
	}
	if loc == nil {
		loc = c.LocalLocation
	}
	return &DBManager{pool: pool, loc: loc}, nil
}

//把存储引擎的锁冲突错误映射为ErrContention,其余包装为StoreError
func translateDBErr(err error, counterID int64) error {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		if myErr.Number == mysqlErrLockWaitTimeout || myErr.Number == mysqlErrDeadlock {
			return fmt.Errorf("counter %d:%w", counterID, ErrContention)
		}
	}
	return NewStoreErrorf(err, "counter %d", counterID)
}

func (p *DBManager) loadCounter(tx *sql.Tx, counterID int64, forUpdate bool) (*Counter, error) {
	query := "SELECT cnt_sec, cnt_min, cnt_hr, cnt_day, cnt_mnt, last_update FROM counters WHERE counterid=?"
	if forUpdate {
		query = query + sqlForUpdate
	}
	var cnt Counter
	err := tx.QueryRow(query, counterID).Scan(&cnt.Sec, &cnt.Min, &cnt.Hour, &cnt.Day, &cnt.Month, &cnt.LastUpdate)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("counter %d:%w", counterID, ErrNotFound)
	}
	if err != nil {
		return nil, translateDBErr(err, counterID)
	}
	return &cnt, nil
}

func (p *DBManager) storeCounter(tx *sql.Tx, counterID int64, cnt *Counter) error {
	_, err := tx.Exec("UPDATE counters SET cnt_sec=?, cnt_min=?, cnt_hr=?, cnt_day=?, cnt_mnt=?, last_update=? WHERE counterid=?",
		cnt.Sec, cnt.Min, cnt.Hour, cnt.Day, cnt.Month, cnt.LastUpdate, counterID)
	if err != nil {
		return translateDBErr(err, counterID)
	}
	return nil
}

// EnsureExists 确保counterID对应的行存在
func (p *DBManager) EnsureExists(counterID int64) error {
	_, err := p.pool.DB().Exec("INSERT IGNORE INTO counters(counterid,last_update) VALUES(?,?)",
		counterID, c.UnixMills(time.Now()))
	if err != nil {
		return translateDBErr(err, counterID)
	}
	return nil
}

// Incr implements Manager.Incr
func (p *DBManager) Incr(counterID int64, timestamp time.Time, field FieldOfInterest) (int64, error) {
	if _, err := (&Counter{}).Value(field); err != nil {
		return 0, err
	}
	rt, err := db.NewOp(p.pool).DoInTrans(func(tx *sql.Tx) (interface{}, error) {
		cnt, err := p.loadCounter(tx, counterID, true)
		if err != nil {
			return nil, err
		}
		next := advance(*cnt, c.UnixMills(timestamp), 1, p.loc)
		if err := p.storeCounter(tx, counterID, &next); err != nil {
			return nil, err
		}
		return next.Value(field)
	})
	if err != nil {
		return 0, err
	}
	return rt.(int64), nil
}

//事务内限额检查的结果,限额冲突时依然提交事务(没有任何写入,只是释放行锁)
type limitCheckResult struct {
	value   int64
	limited bool
}

// IncrWithinLimit implements Manager.IncrWithinLimit. The rollover is
// computed in memory on the row fetched FOR UPDATE;a limit violation
// commits the transaction without writing,so the stored tallies stay
// untouched.
func (p *DBManager) IncrWithinLimit(counterID int64, timestamp time.Time, field FieldOfInterest, limit int64) (int64, error) {
	rt, err := db.NewOp(p.pool).DoInTrans(func(tx *sql.Tx) (interface{}, error) {
		cnt, err := p.loadCounter(tx, counterID, true)
		if err != nil {
			return nil, err
		}
		next := advance(*cnt, c.UnixMills(timestamp), 1, p.loc)
		violated, err := violatesLimit(&next, field, limit)
		if err != nil {
			return nil, err
		}
		if violated {
			return &limitCheckResult{limited: true}, nil
		}
		if err := p.storeCounter(tx, counterID, &next); err != nil {
			return nil, err
		}
		v, err := next.Value(field)
		if err != nil {
			return nil, err
		}
		return &limitCheckResult{value: v}, nil
	})
	if err != nil {
		return 0, err
	}
	result := rt.(*limitCheckResult)
	if result.limited {
		return 0, ErrLimitReached
	}
	return result.value, nil
}

// Decr implements Manager.Decr
func (p *DBManager) Decr(counterID int64) error {
	_, err := db.NewOp(p.pool).DoInTrans(func(tx *sql.Tx) (interface{}, error) {
		cnt, err := p.loadCounter(tx, counterID, true)
		if err != nil {
			return nil, err
		}
		next := decrementAll(*cnt, 1)
		if err := p.storeCounter(tx, counterID, &next); err != nil {
			return nil, err
		}
		return nil, nil
	})
	return err
}

// Get implements Manager.Get,read only,no row lock
func (p *DBManager) Get(counterID int64, field FieldOfInterest) (int64, error) {
	cnt, err := p.readCounter(counterID)
	if err != nil {
		return 0, err
	}
	return cnt.Value(field)
}

// Reset implements Manager.Reset,a missing counter is not an error
func (p *DBManager) Reset(counterID int64) error {
	_, err := db.NewOp(p.pool).DoInTrans(func(tx *sql.Tx) (interface{}, error) {
		cnt, err := p.loadCounter(tx, counterID, true)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, nil
			}
			return nil, err
		}
		*cnt = Counter{LastUpdate: c.UnixMills(time.Now())}
		if err := p.storeCounter(tx, counterID, cnt); err != nil {
			return nil, err
		}
		return nil, nil
	})
	return err
}

// Info implements Manager.Info
func (p *DBManager) Info(counterID int64) (*CounterInfo, error) {
	cnt, err := p.readCounter(counterID)
	if err != nil {
		return nil, err
	}
	return newCounterInfo(counterID, cnt, p.loc), nil
}

func (p *DBManager) readCounter(counterID int64) (*Counter, error) {
	var cnt Counter
	err := p.pool.DB().QueryRow("SELECT cnt_sec, cnt_min, cnt_hr, cnt_day, cnt_mnt, last_update FROM counters WHERE counterid=?", counterID).
		Scan(&cnt.Sec, &cnt.Min, &cnt.Hour, &cnt.Day, &cnt.Month, &cnt.LastUpdate)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("counter %d:%w", counterID, ErrNotFound)
	}
	if err != nil {
		return nil, translateDBErr(err, counterID)
	}
	return &cnt, nil
}

// ApplySteps implements BatchStore.ApplySteps. All the steps run in one
// transaction against the row fetched FOR UPDATE and the row is written
// back once,mirroring the batched flush of the asynchronous mode.
func (p *DBManager) ApplySteps(counterID int64, steps []Step) error {
	if len(steps) == 0 {
		return nil
	}
	_, err := db.NewOp(p.pool).DoInTrans(func(tx *sql.Tx) (interface{}, error) {
		cnt, err := p.loadCounter(tx, counterID, true)
		if err != nil {
			return nil, err
		}
		updated := false
		for _, step := range steps {
			if step.Decrement {
				*cnt = decrementAll(*cnt, step.Delta)
				updated = true
				continue
			}
			scratch := advance(*cnt, step.Timestamp, step.Delta, p.loc)
			violated, err := violatesLimit(&scratch, step.Field, step.Limit)
			if err != nil {
				return nil, err
			}
			if violated {
				c.Debugf("async processing permitted request over quota for counter %d", counterID)
				continue
			}
			*cnt = scratch
			updated = true
		}
		if updated {
			if err := p.storeCounter(tx, counterID, cnt); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}
