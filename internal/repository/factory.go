package repository

import (
	"github.com/syagroup/bulksms-backend/internal/db"
	"github.com/syagroup/bulksms-backend/internal/model"
)

// TenantDeliveryRepoFactory builds delivery repositories backed by each
// tenant's isolated database.
type TenantDeliveryRepoFactory struct {
	Provider *db.TenantDBProvider
}

func (f *TenantDeliveryRepoFactory) ForTenant(t *model.Tenant) (DeliveryRepositoryInterface, error) {
	conn, err := f.Provider.ForTenant(t)
	if err != nil {
		return nil, err
	}
	return &DeliveryRepository{DB: conn}, nil
}
