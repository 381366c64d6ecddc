package ports

import "github.com/dlc-network/dlcd/internal/core/domain"

type Notifier interface {
	NotifyContract(contract domain.Contract)
}
