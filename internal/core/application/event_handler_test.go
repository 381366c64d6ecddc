package application

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dlc-network/dlcd/internal/core/domain"
	"github.com/dlc-network/dlcd/internal/core/ports"
	badgerdb "github.com/dlc-network/dlcd/internal/infrastructure/db/badger"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestHandler(
	t *testing.T, wallet ports.WalletService, engine ports.CryptoEngine,
	contracts ...domain.Contract,
) (*contractEventHandler, domain.ContractRepository) {
	info := testInitial(false).OracleInfo
	oracle := &mockedOracle{}
	oracle.On("GetAnnouncement", mock.Anything, info.AssetId, info.MaturityTime).
		Return(&domain.OracleAnnouncement{
			Name:         info.Name,
			PublicKey:    info.PublicKey,
			RValues:      info.RValues,
			AssetId:      info.AssetId,
			MaturityTime: info.MaturityTime,
		}, nil)
	return newTestHandlerWithOracle(t, wallet, engine, oracle, contracts...)
}

func newTestHandlerWithOracle(
	t *testing.T, wallet ports.WalletService, engine ports.CryptoEngine,
	oracle ports.OracleClient, contracts ...domain.Contract,
) (*contractEventHandler, domain.ContractRepository) {
	repo, err := badgerdb.NewContractRepository("", nil)
	require.NoError(t, err)
	t.Cleanup(repo.Close)

	for _, c := range contracts {
		require.NoError(t, repo.CreateContract(context.Background(), c))
	}
	updater := newContractUpdater(wallet, engine)
	return newContractEventHandler(repo, updater, oracle), repo
}

func requireState(
	t *testing.T, repo domain.ContractRepository, id string, state domain.ContractState,
) {
	c, err := repo.GetContract(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, state, c.GetState())
}

func TestOnOfferMessage(t *testing.T) {
	ctx := context.Background()
	offer := domain.NewOfferMessage(testOffered(true))

	t.Run("valid", func(t *testing.T) {
		handler, repo := newTestHandler(t, &mockedWallet{}, &mockedEngine{})

		offered, err := handler.OnOfferMessage(ctx, "alice", offer)
		require.NoError(t, err)
		require.Equal(t, domain.StateOffered, offered.State)
		require.False(t, offered.IsLocalParty)
		require.Equal(t, "alice", offered.CounterPartyName)
		require.Nil(t, offered.PrivateParams)
		requireState(t, repo, offer.ContractId, domain.StateOffered)
	})

	t.Run("invalid", func(t *testing.T) {
		badPayout := offer
		badPayout.Outcomes = []domain.Outcome{{Message: "bull", LocalPayout: 1}}
		badRefund := offer
		badRefund.RefundLocktime = offer.MaturityTime
		poorOfferer := offer
		poorOfferer.LocalPartyInputs.Utxos = nil

		tests := []struct {
			name string
			msg  domain.OfferMessage
		}{
			{"payout not matching collateral", badPayout},
			{"refund before maturity", badRefund},
			{"offerer inputs too low", poorOfferer},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				handler, repo := newTestHandler(t, &mockedWallet{}, &mockedEngine{})
				_, err := handler.OnOfferMessage(ctx, "alice", tt.msg)

				var protocolErr *ProtocolError
				require.ErrorAs(t, err, &protocolErr)
				_, err = repo.GetContract(ctx, tt.msg.ContractId)
				require.ErrorIs(t, err, domain.ErrContractNotFound)
			})
		}

		t.Run("duplicated offer", func(t *testing.T) {
			handler, _ := newTestHandler(t, &mockedWallet{}, &mockedEngine{})
			_, err := handler.OnOfferMessage(ctx, "alice", offer)
			require.NoError(t, err)

			_, err = handler.OnOfferMessage(ctx, "alice", offer)
			var protocolErr *ProtocolError
			require.ErrorAs(t, err, &protocolErr)
			require.ErrorIs(t, err, domain.ErrContractAlreadyExists)
		})

		t.Run("oracle not matching announcement", func(t *testing.T) {
			tests := []struct {
				name   string
				mutate func(*domain.OracleAnnouncement)
			}{
				{"other nonce", func(a *domain.OracleAnnouncement) {
					a.RValues = []string{"other-nonce"}
				}},
				{"other oracle key", func(a *domain.OracleAnnouncement) {
					a.PublicKey = "other-oracle-pubkey"
				}},
				{"numeric event", func(a *domain.OracleAnnouncement) {
					a.Base, a.NbDigits = 2, 1
				}},
			}
			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					info := offer.OracleInfo
					announcement := &domain.OracleAnnouncement{
						Name:         info.Name,
						PublicKey:    info.PublicKey,
						RValues:      append([]string{}, info.RValues...),
						AssetId:      info.AssetId,
						MaturityTime: info.MaturityTime,
					}
					tt.mutate(announcement)
					oracle := &mockedOracle{}
					oracle.On("GetAnnouncement", mock.Anything, info.AssetId, info.MaturityTime).
						Return(announcement, nil)

					handler, repo := newTestHandlerWithOracle(
						t, &mockedWallet{}, &mockedEngine{}, oracle,
					)
					_, err := handler.OnOfferMessage(ctx, "alice", offer)

					var protocolErr *ProtocolError
					require.ErrorAs(t, err, &protocolErr)
					require.ErrorContains(t, err, "offer oracle does not match announcement")
					_, err = repo.GetContract(ctx, offer.ContractId)
					require.ErrorIs(t, err, domain.ErrContractNotFound)
				})
			}
		})

		t.Run("announcement unavailable", func(t *testing.T) {
			oracle := &mockedOracle{}
			oracle.On("GetAnnouncement", mock.Anything, mock.Anything, mock.Anything).
				Return(nil, fmt.Errorf("oracle unreachable"))

			handler, repo := newTestHandlerWithOracle(
				t, &mockedWallet{}, &mockedEngine{}, oracle,
			)
			_, err := handler.OnOfferMessage(ctx, "alice", offer)
			require.ErrorContains(t, err, "oracle unreachable")
			_, err = repo.GetContract(ctx, offer.ContractId)
			require.ErrorIs(t, err, domain.ErrContractNotFound)
		})
	})
}

func TestOnAcceptMessage(t *testing.T) {
	ctx := context.Background()
	offered := testOffered(true)
	accepted := testAccepted(true)
	msg := domain.NewAcceptMessage(accepted)
	txs := &ports.DlcTransactions{
		FundTxHex:       accepted.FundTxHex,
		FundTxId:        accepted.FundTxId,
		FundOutputValue: accepted.FundOutputValue,
		FundAddress:     accepted.FundAddress,
		RefundTxHex:     accepted.RefundTxHex,
		LocalCetsHex:    accepted.LocalCetsHex,
		RemoteCetsHex:   accepted.RemoteCetsHex,
	}

	newEngine := func(validSignatures bool) *mockedEngine {
		engine := &mockedEngine{}
		engine.On("CreateDlcTransactions", mock.Anything).Return(txs, nil)
		engine.On("VerifyCetSignatures", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(validSignatures)
		engine.On("VerifyRefundSignature", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(true)
		engine.On("SignFundingInputs", "fund-tx", localUtxos, offered.PrivateParams.InputPrivateKeys).
			Return([]domain.FundingSignature{{Txid: "0a"}, {Txid: "0b", Vout: 1}}, nil)
		engine.On("SignRefund", "refund-tx", mock.Anything, "local-fund-key").
			Return("local-refund-sig", nil)
		engine.On("SignCets", remoteCets, mock.Anything, "local-fund-key").
			Return([]string{"local-sig-bull", "local-sig-bear"}, nil)
		return engine
	}
	newWallet := func() *mockedWallet {
		wallet := &mockedWallet{}
		wallet.On("ImportAddress", mock.Anything, "fund-address").Return(nil)
		wallet.On("UnlockUtxos", mock.Anything, mock.Anything).Return(nil)
		return wallet
	}

	t.Run("valid", func(t *testing.T) {
		wallet := newWallet()
		// Input private keys aren't valid hex keys, so the offerer can't
		// derive its utxo pubkeys from them.
		o := offered
		o.PrivateParams = &domain.PrivateParams{
			FundPrivateKey:   "local-fund-key",
			InputPrivateKeys: []string{},
		}
		engine := &mockedEngine{}
		engine.On("CreateDlcTransactions", mock.Anything).Return(txs, nil)
		engine.On("VerifyCetSignatures", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(true)
		engine.On("VerifyRefundSignature", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(true)
		engine.On("SignFundingInputs", "fund-tx", localUtxos, []string{}).
			Return([]domain.FundingSignature{}, nil)
		engine.On("SignRefund", "refund-tx", mock.Anything, "local-fund-key").
			Return("local-refund-sig", nil)
		engine.On("SignCets", remoteCets, mock.Anything, "local-fund-key").
			Return([]string{"local-sig-bull", "local-sig-bear"}, nil)

		handler, repo := newTestHandler(t, wallet, engine, o)
		contract, err := handler.OnAcceptMessage(ctx, "bob", msg)
		require.NoError(t, err)

		signed, ok := contract.(domain.SignedContract)
		require.True(t, ok)
		require.Equal(t, domain.StateSigned, signed.State)
		require.Equal(t, msg.CetSignatures, signed.RemoteCetSignatures)
		require.Equal(t, []string{"local-sig-bull", "local-sig-bear"}, signed.LocalCetSignatures)
		require.Equal(t, "local-refund-sig", signed.RefundLocalSignature)
		requireState(t, repo, o.Id, domain.StateSigned)
		wallet.AssertNotCalled(t, "UnlockUtxos", mock.Anything, mock.Anything)
	})

	t.Run("invalid", func(t *testing.T) {
		t.Run("tampered signatures", func(t *testing.T) {
			wallet := newWallet()
			engine := newEngine(false)
			handler, repo := newTestHandler(t, wallet, engine, offered)

			contract, err := handler.OnAcceptMessage(ctx, "bob", msg)
			require.ErrorIs(t, err, ErrInvalidSignatures)
			var protocolErr *ProtocolError
			require.ErrorAs(t, err, &protocolErr)

			rejected, ok := contract.(domain.RejectedContract)
			require.True(t, ok)
			require.Equal(t, domain.StateRejected, rejected.State)
			requireState(t, repo, offered.Id, domain.StateRejected)
			wallet.AssertNumberOfCalls(t, "UnlockUtxos", 1)
			wallet.AssertCalled(t, "UnlockUtxos", mock.Anything, localUtxos)
			engine.AssertNotCalled(t, "SignCets", mock.Anything, mock.Anything, mock.Anything)

			// A second accept finds the contract rejected and is discarded
			// without releasing anything again.
			_, err = handler.OnAcceptMessage(ctx, "bob", msg)
			require.ErrorAs(t, err, &protocolErr)
			wallet.AssertNumberOfCalls(t, "UnlockUtxos", 1)
		})

		t.Run("unexpected sender", func(t *testing.T) {
			wallet := newWallet()
			handler, repo := newTestHandler(t, wallet, newEngine(true), offered)

			contract, err := handler.OnAcceptMessage(ctx, "mallory", msg)
			var protocolErr *ProtocolError
			require.ErrorAs(t, err, &protocolErr)
			require.Nil(t, contract)
			requireState(t, repo, offered.Id, domain.StateOffered)
			wallet.AssertNotCalled(t, "UnlockUtxos", mock.Anything, mock.Anything)
		})

		t.Run("unknown contract", func(t *testing.T) {
			handler, _ := newTestHandler(t, newWallet(), newEngine(true))

			_, err := handler.OnAcceptMessage(ctx, "bob", msg)
			var protocolErr *ProtocolError
			require.ErrorAs(t, err, &protocolErr)
			require.ErrorIs(t, err, domain.ErrContractNotFound)
		})

		t.Run("offer received", func(t *testing.T) {
			handler, repo := newTestHandler(t, newWallet(), newEngine(true), testOffered(false))

			_, err := handler.OnAcceptMessage(ctx, "bob", msg)
			var protocolErr *ProtocolError
			require.ErrorAs(t, err, &protocolErr)
			requireState(t, repo, offered.Id, domain.StateOffered)
		})
	})
}

func TestOnSignMessage(t *testing.T) {
	ctx := context.Background()
	accepted := testAccepted(false)
	msg := domain.NewSignMessage(testSigned(false))

	t.Run("valid", func(t *testing.T) {
		engine := &mockedEngine{}
		engine.On("VerifyCetSignatures", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(true)
		engine.On("VerifyRefundSignature", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(true)
		engine.On("VerifyFundingSignatures", mock.Anything, mock.Anything, mock.Anything).
			Return(true)
		engine.On("SignFundingInputs", "fund-tx", remoteUtxos, []string{"remote-coin-key"}).
			Return([]domain.FundingSignature{{Txid: "0c"}}, nil)
		engine.On("FinalizeFundingTx", "fund-tx", mock.Anything, mock.Anything).
			Return("signed-fund-tx", nil)
		wallet := &mockedWallet{}
		wallet.On("BroadcastTransaction", mock.Anything, "signed-fund-tx").Return("fund-txid", nil)

		handler, repo := newTestHandler(t, wallet, engine, accepted)
		contract, err := handler.OnSignMessage(ctx, "bob", msg)
		require.NoError(t, err)

		broadcast, ok := contract.(domain.BroadcastContract)
		require.True(t, ok)
		require.Equal(t, "signed-fund-tx", broadcast.SignedFundTxHex)
		requireState(t, repo, accepted.Id, domain.StateBroadcast)

		call := engine.Calls[len(engine.Calls)-1]
		require.Equal(t, "FinalizeFundingTx", call.Method)
		require.Len(t, call.Arguments.Get(1), len(localUtxos)+len(remoteUtxos))
		require.Len(t, call.Arguments.Get(2), len(msg.FundingSignatures)+1)
	})

	t.Run("invalid", func(t *testing.T) {
		engine := &mockedEngine{}
		engine.On("VerifyCetSignatures", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(true)
		engine.On("VerifyRefundSignature", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(false)
		wallet := &mockedWallet{}
		wallet.On("UnlockUtxos", mock.Anything, remoteUtxos).Return(nil)

		handler, repo := newTestHandler(t, wallet, engine, accepted)
		contract, err := handler.OnSignMessage(ctx, "bob", msg)
		require.ErrorIs(t, err, ErrInvalidSignatures)
		require.Equal(t, domain.StateRejected, contract.GetState())
		requireState(t, repo, accepted.Id, domain.StateRejected)
		wallet.AssertNumberOfCalls(t, "UnlockUtxos", 1)
		wallet.AssertNotCalled(t, "BroadcastTransaction", mock.Anything, mock.Anything)
	})
}

func TestStateGuards(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		contract domain.Contract
		event    func(h *contractEventHandler) error
	}{
		{
			name:     "confirm an offer",
			contract: testOffered(true),
			event: func(h *contractEventHandler) error {
				_, err := h.OnContractConfirmed(ctx, "contract")
				return err
			},
		},
		{
			name:     "close a confirmed contract",
			contract: testConfirmed(true),
			event: func(h *contractEventHandler) error {
				_, err := h.OnClosed(ctx, "contract")
				return err
			},
		},
		{
			name:     "refund a signed contract",
			contract: testSigned(true),
			event: func(h *contractEventHandler) error {
				_, err := h.OnContractRefund(ctx, "contract")
				return err
			},
		},
		{
			name:     "accept own offer",
			contract: testOffered(true),
			event: func(h *contractEventHandler) error {
				_, err := h.OnOfferAccepted(ctx, "contract")
				return err
			},
		},
		{
			name:     "reject own offer",
			contract: testOffered(true),
			event: func(h *contractEventHandler) error {
				_, err := h.OnRejectContract(ctx, "contract")
				return err
			},
		},
		{
			name:     "counterparty rejects an offer received",
			contract: testOffered(false),
			event: func(h *contractEventHandler) error {
				_, err := h.OnContractRejected(ctx, "bob", domain.RejectMessage{ContractId: "contract"})
				return err
			},
		},
		{
			name:     "fail a signed contract",
			contract: testSigned(true),
			event: func(h *contractEventHandler) error {
				_, err := h.OnSendOfferFail(ctx, "contract", "reason")
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wallet := &mockedWallet{}
			engine := &mockedEngine{}
			handler, repo := newTestHandler(t, wallet, engine, tt.contract)

			err := tt.event(handler)
			var protocolErr *ProtocolError
			require.True(t, errors.As(err, &protocolErr), "got %v", err)
			requireState(t, repo, "contract", tt.contract.GetState())
			require.Empty(t, wallet.Calls)
			require.Empty(t, engine.Calls)
		})
	}
}

func TestOnOfferAcceptFailed(t *testing.T) {
	ctx := context.Background()
	wallet := &mockedWallet{}
	wallet.On("UnlockUtxos", mock.Anything, remoteUtxos).Return(nil)

	handler, repo := newTestHandler(t, wallet, &mockedEngine{}, testAccepted(false))
	offered, err := handler.OnOfferAcceptFailed(ctx, "contract")
	require.NoError(t, err)
	require.Equal(t, domain.StateOffered, offered.State)
	requireState(t, repo, "contract", domain.StateOffered)
	wallet.AssertNumberOfCalls(t, "UnlockUtxos", 1)

	c, err := repo.GetContract(ctx, "contract")
	require.NoError(t, err)
	require.Nil(t, c.(domain.OfferedContract).PrivateParams)
}
