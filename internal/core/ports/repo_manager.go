package ports

import "github.com/dlc-network/dlcd/internal/core/domain"

type RepoManager interface {
	Contracts() domain.ContractRepository
	Close()
}
