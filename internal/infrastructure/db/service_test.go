package db_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/dlc-network/dlcd/internal/core/domain"
	"github.com/dlc-network/dlcd/internal/core/ports"
	"github.com/dlc-network/dlcd/internal/infrastructure/db"
	sqlitedb "github.com/dlc-network/dlcd/internal/infrastructure/db/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestService(t *testing.T) {
	dbDir := t.TempDir()
	sqliteDb, err := sqlitedb.OpenDb(filepath.Join(dbDir, db.SqliteDbFile))
	require.NoError(t, err)

	tests := []struct {
		name   string
		config db.ServiceConfig
	}{
		{
			name: "repo_manager_with_badger_stores",
			config: db.ServiceConfig{
				DataStoreType:   "badger",
				DataStoreConfig: []interface{}{"", nil},
			},
		},
		{
			name: "repo_manager_with_persisted_badger_stores",
			config: db.ServiceConfig{
				DataStoreType:   "badger",
				DataStoreConfig: []interface{}{t.TempDir(), nil},
			},
		},
		{
			name: "repo_manager_with_sqlite_stores",
			config: db.ServiceConfig{
				DataStoreType:   "sqlite",
				DataStoreConfig: []interface{}{sqliteDb},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := db.NewService(tt.config)
			require.NoError(t, err)
			defer svc.Close()

			testContractRepository(t, svc)
		})
	}

	t.Run("invalid", func(t *testing.T) {
		svc, err := db.NewService(db.ServiceConfig{DataStoreType: "postgres"})
		require.Error(t, err)
		require.Nil(t, svc)

		svc, err = db.NewService(db.ServiceConfig{
			DataStoreType:   "sqlite",
			DataStoreConfig: []interface{}{"not a db"},
		})
		require.Error(t, err)
		require.Nil(t, svc)
	})
}

func testContractRepository(t *testing.T, svc ports.RepoManager) {
	t.Run("test_contract_repository", func(t *testing.T) {
		ctx := context.Background()
		repo := svc.Contracts()
		now := time.Now().Unix()

		offered := newOfferedContract("alice", now+100)
		matured := newOfferedContract("bob", now-100)

		require.NoError(t, repo.CreateContract(ctx, offered))
		require.NoError(t, repo.CreateContract(ctx, matured))
		require.ErrorIs(t, repo.CreateContract(ctx, offered), domain.ErrContractAlreadyExists)

		got, err := repo.GetContract(ctx, offered.Id)
		require.NoError(t, err)
		require.Equal(t, offered, got)

		_, err = repo.GetContract(ctx, uuid.New().String())
		require.ErrorIs(t, err, domain.ErrContractNotFound)

		accepted := domain.AcceptedContract{
			OfferedContract: matured,
			FundTxId:        "fundtxid",
			LocalCetsHex:    []string{"00", "01"},
			RemoteCetsHex:   []string{"02", "03"},
		}
		accepted.State = domain.StateAccepted
		require.NoError(t, repo.UpdateContract(ctx, accepted))

		got, err = repo.GetContract(ctx, matured.Id)
		require.NoError(t, err)
		require.Equal(t, accepted, got)

		// Upsert creates missing contracts.
		failed := domain.FailedContract{
			OfferedContract: newOfferedContract("carol", now),
			Reason:          "send failed",
		}
		failed.State = domain.StateFailed
		require.NoError(t, repo.UpdateContract(ctx, failed))

		contracts, err := repo.QueryContracts(ctx, domain.ContractFilter{})
		require.NoError(t, err)
		require.Len(t, contracts, 3)
		require.Equal(t, matured.Id, contracts[0].GetId())

		contracts, err = repo.QueryContracts(ctx, domain.ContractFilter{
			States: []domain.ContractState{domain.StateOffered, domain.StateAccepted},
		})
		require.NoError(t, err)
		require.Len(t, contracts, 2)

		contracts, err = repo.QueryContracts(ctx, domain.ContractFilter{
			States:        []domain.ContractState{domain.StateAccepted},
			MaturedBefore: now,
		})
		require.NoError(t, err)
		require.Len(t, contracts, 1)
		require.Equal(t, domain.StateAccepted, contracts[0].GetState())

		contracts, err = repo.QueryContracts(ctx, domain.ContractFilter{
			CounterPartyName: "alice",
		})
		require.NoError(t, err)
		require.Len(t, contracts, 1)

		contracts, err = repo.QueryContracts(ctx, domain.ContractFilter{
			RefundLocktimeBefore: now,
		})
		require.NoError(t, err)
		require.Empty(t, contracts)
	})
}

func newOfferedContract(counterparty string, maturity int64) domain.OfferedContract {
	return domain.OfferedContract{
		InitialContract: domain.InitialContract{
			Id:               uuid.New().String(),
			State:            domain.StateOffered,
			IsLocalParty:     true,
			CounterPartyName: counterparty,
			LocalCollateral:  50_000,
			RemoteCollateral: 50_000,
			FeeRate:          2,
			MaturityTime:     maturity,
			RefundLocktime:   maturity + 604800,
			Outcomes: []domain.Outcome{
				{Message: "yes", LocalPayout: 100_000},
				{Message: "no", RemotePayout: 100_000},
			},
			OracleInfo: domain.OracleInfo{
				Name:         "olivia",
				PublicKey:    "aa",
				RValues:      []string{"bb"},
				AssetId:      "election",
				MaturityTime: maturity,
			},
		},
		LocalPartyInputs: domain.PartyInputs{
			FundPublicKey: "02aa",
			Utxos:         []domain.Utxo{{Txid: "tx", Vout: 1, Amount: 60_000}},
		},
		PrivateParams: &domain.PrivateParams{FundPrivateKey: "01"},
	}
}
