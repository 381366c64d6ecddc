package sqlitedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dlc-network/dlcd/internal/core/domain"
)

const (
	insertContractQuery = `
INSERT INTO contract (id, state, counterparty_name, maturity_time, refund_locktime, data)
VALUES (?, ?, ?, ?, ?, ?)`

	upsertContractQuery = insertContractQuery + `
ON CONFLICT(id) DO UPDATE SET
    state = excluded.state,
    counterparty_name = excluded.counterparty_name,
    maturity_time = excluded.maturity_time,
    refund_locktime = excluded.refund_locktime,
    data = excluded.data`

	selectContractQuery = `SELECT state, data FROM contract`
)

type contractRepository struct {
	db *sql.DB
}

func NewContractRepository(config ...interface{}) (domain.ContractRepository, error) {
	if len(config) != 1 {
		return nil, fmt.Errorf("invalid config")
	}
	db, ok := config[0].(*sql.DB)
	if !ok {
		return nil, fmt.Errorf("cannot open contract repository: invalid config, expected db at 0")
	}

	return &contractRepository{db}, nil
}

func (r *contractRepository) CreateContract(
	ctx context.Context, contract domain.Contract,
) error {
	args, err := contractArgs(contract)
	if err != nil {
		return err
	}
	return execTx(ctx, r.db, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(
			ctx, "SELECT 1 FROM contract WHERE id = ?", contract.GetId(),
		).Scan(&exists)
		if err == nil {
			return domain.ErrContractAlreadyExists
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to check contract: %w", err)
		}

		if _, err := tx.ExecContext(ctx, insertContractQuery, args...); err != nil {
			return fmt.Errorf("failed to insert contract: %w", err)
		}
		return nil
	})
}

func (r *contractRepository) GetContract(
	ctx context.Context, id string,
) (domain.Contract, error) {
	row := r.db.QueryRowContext(ctx, selectContractQuery+" WHERE id = ?", id)
	contract, err := scanContract(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrContractNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get contract: %w", err)
	}
	return contract, nil
}

func (r *contractRepository) UpdateContract(
	ctx context.Context, contract domain.Contract,
) error {
	args, err := contractArgs(contract)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, upsertContractQuery, args...); err != nil {
		return fmt.Errorf("failed to upsert contract: %w", err)
	}
	return nil
}

func (r *contractRepository) QueryContracts(
	ctx context.Context, filter domain.ContractFilter,
) ([]domain.Contract, error) {
	conditions := make([]string, 0)
	args := make([]interface{}, 0)

	if len(filter.States) > 0 {
		placeholders := make([]string, 0, len(filter.States))
		for _, s := range filter.States {
			placeholders = append(placeholders, "?")
			args = append(args, int(s))
		}
		conditions = append(
			conditions, fmt.Sprintf("state IN (%s)", strings.Join(placeholders, ", ")),
		)
	}
	if len(filter.CounterPartyName) > 0 {
		conditions = append(conditions, "counterparty_name = ?")
		args = append(args, filter.CounterPartyName)
	}
	if filter.MaturedBefore > 0 {
		conditions = append(conditions, "maturity_time <= ?")
		args = append(args, filter.MaturedBefore)
	}
	if filter.RefundLocktimeBefore > 0 {
		conditions = append(conditions, "refund_locktime <= ?")
		args = append(args, filter.RefundLocktimeBefore)
	}

	query := selectContractQuery
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY maturity_time, id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query contracts: %w", err)
	}
	defer rows.Close()

	contracts := make([]domain.Contract, 0)
	for rows.Next() {
		contract, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		contracts = append(contracts, contract)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return contracts, nil
}

func (r *contractRepository) Close() {
	_ = r.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanContract(row scanner) (domain.Contract, error) {
	var state int
	var data []byte
	if err := row.Scan(&state, &data); err != nil {
		return nil, err
	}
	return domain.DecodeContract(domain.ContractState(state), data)
}

func contractArgs(contract domain.Contract) ([]interface{}, error) {
	data, err := domain.EncodeContract(contract)
	if err != nil {
		return nil, err
	}
	initial := contract.Initial()
	return []interface{}{
		contract.GetId(),
		int(contract.GetState()),
		contract.GetCounterPartyName(),
		initial.MaturityTime,
		initial.RefundLocktime,
		data,
	}, nil
}
