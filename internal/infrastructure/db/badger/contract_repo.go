package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/dgraph-io/badger/v4"
	"github.com/dlc-network/dlcd/internal/core/domain"
	"github.com/timshannon/badgerhold/v4"
)

const contractStoreDir = "contracts"

// contractDTO keeps the fields contracts are queried by next to the
// encoded variant.
type contractDTO struct {
	Id               string
	State            int
	CounterPartyName string
	MaturityTime     int64
	RefundLocktime   int64
	Data             []byte
}

type contractRepository struct {
	store *badgerhold.Store
}

func NewContractRepository(config ...interface{}) (domain.ContractRepository, error) {
	if len(config) != 2 {
		return nil, fmt.Errorf("invalid config")
	}
	baseDir, ok := config[0].(string)
	if !ok {
		return nil, fmt.Errorf("invalid base directory")
	}
	var logger badger.Logger
	if config[1] != nil {
		logger, ok = config[1].(badger.Logger)
		if !ok {
			return nil, fmt.Errorf("invalid logger")
		}
	}

	var dir string
	if len(baseDir) > 0 {
		dir = filepath.Join(baseDir, contractStoreDir)
	}
	store, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open contract store: %s", err)
	}

	return &contractRepository{store}, nil
}

func (r *contractRepository) CreateContract(
	_ context.Context, contract domain.Contract,
) error {
	dto, err := toDTO(contract)
	if err != nil {
		return err
	}
	if err := r.store.Insert(dto.Id, *dto); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return domain.ErrContractAlreadyExists
		}
		return err
	}
	return nil
}

func (r *contractRepository) GetContract(
	_ context.Context, id string,
) (domain.Contract, error) {
	var dto contractDTO
	if err := r.store.Get(id, &dto); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, domain.ErrContractNotFound
		}
		return nil, err
	}
	return dto.toContract()
}

func (r *contractRepository) UpdateContract(
	_ context.Context, contract domain.Contract,
) error {
	dto, err := toDTO(contract)
	if err != nil {
		return err
	}
	return r.store.Upsert(dto.Id, *dto)
}

func (r *contractRepository) QueryContracts(
	_ context.Context, filter domain.ContractFilter,
) ([]domain.Contract, error) {
	var query *badgerhold.Query
	where := func(field string) *badgerhold.Criterion {
		if query == nil {
			return badgerhold.Where(field)
		}
		return query.And(field)
	}

	if len(filter.States) > 0 {
		states := make([]interface{}, 0, len(filter.States))
		for _, s := range filter.States {
			states = append(states, int(s))
		}
		query = where("State").In(states...)
	}
	if len(filter.CounterPartyName) > 0 {
		query = where("CounterPartyName").Eq(filter.CounterPartyName)
	}
	if filter.MaturedBefore > 0 {
		query = where("MaturityTime").Le(filter.MaturedBefore)
	}
	if filter.RefundLocktimeBefore > 0 {
		query = where("RefundLocktime").Le(filter.RefundLocktimeBefore)
	}
	if query == nil {
		query = &badgerhold.Query{}
	}

	var dtos []contractDTO
	if err := r.store.Find(&dtos, query); err != nil {
		return nil, err
	}
	sort.SliceStable(dtos, func(i, j int) bool {
		if dtos[i].MaturityTime == dtos[j].MaturityTime {
			return dtos[i].Id < dtos[j].Id
		}
		return dtos[i].MaturityTime < dtos[j].MaturityTime
	})

	contracts := make([]domain.Contract, 0, len(dtos))
	for _, dto := range dtos {
		contract, err := dto.toContract()
		if err != nil {
			return nil, err
		}
		contracts = append(contracts, contract)
	}
	return contracts, nil
}

func (r *contractRepository) Close() {
	r.store.Close()
}

func toDTO(contract domain.Contract) (*contractDTO, error) {
	buf, err := domain.EncodeContract(contract)
	if err != nil {
		return nil, err
	}
	initial := contract.Initial()
	return &contractDTO{
		Id:               contract.GetId(),
		State:            int(contract.GetState()),
		CounterPartyName: contract.GetCounterPartyName(),
		MaturityTime:     initial.MaturityTime,
		RefundLocktime:   initial.RefundLocktime,
		Data:             buf,
	}, nil
}

func (d contractDTO) toContract() (domain.Contract, error) {
	return domain.DecodeContract(domain.ContractState(d.State), d.Data)
}
