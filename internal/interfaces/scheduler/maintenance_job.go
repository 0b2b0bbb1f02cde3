package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"finledger/internal/domain/ledger"
)

// Maintainer closes and flags a company's invoices. *ledger.InvoiceService
// implements it.
type Maintainer interface {
	CompaniesDueForMaintenance(ctx context.Context, asOf time.Time) ([]int64, error)
	RunMaintenance(ctx context.Context, companyID int64, asOf time.Time) (*ledger.MaintenanceResult, error)
}

// InvoiceMaintenanceJob runs invoice maintenance for one company.
type InvoiceMaintenanceJob struct {
	companyID  int64
	asOf       time.Time
	maintainer Maintainer
	log        zerolog.Logger
}

func NewInvoiceMaintenanceJob(companyID int64, asOf time.Time, maintainer Maintainer, log zerolog.Logger) *InvoiceMaintenanceJob {
	return &InvoiceMaintenanceJob{
		companyID:  companyID,
		asOf:       asOf,
		maintainer: maintainer,
		log:        log,
	}
}

// Execute fails when any invoice could not be processed so the run is
// reported as an error.
func (j *InvoiceMaintenanceJob) Execute(ctx context.Context) error {
	result, err := j.maintainer.RunMaintenance(ctx, j.companyID, j.asOf)
	if err != nil {
		return fmt.Errorf("maintenance failed: %w", err)
	}

	j.log.Info().
		Int64("company_id", j.companyID).
		Int("closed", result.Closed).
		Int("overdue", result.Overdue).
		Msg("invoice maintenance completed")

	if len(result.Errors) > 0 {
		return fmt.Errorf("maintenance completed with %d errors: %w", len(result.Errors), errors.Join(result.Errors...))
	}
	return nil
}

func (j *InvoiceMaintenanceJob) Key() string {
	return strconv.FormatInt(j.companyID, 10)
}

func (j *InvoiceMaintenanceJob) Description() string {
	return fmt.Sprintf("Invoice maintenance for company %d", j.companyID)
}

// MaintenanceJobs returns a provider yielding one maintenance job per
// company with invoices due as of now().
func MaintenanceJobs(m Maintainer, now func() time.Time, log zerolog.Logger) JobProvider {
	return func(ctx context.Context) ([]Job, error) {
		asOf := now()
		companies, err := m.CompaniesDueForMaintenance(ctx, asOf)
		if err != nil {
			return nil, fmt.Errorf("failed to list companies due for maintenance: %w", err)
		}

		jobs := make([]Job, 0, len(companies))
		for _, id := range companies {
			jobs = append(jobs, NewInvoiceMaintenanceJob(id, asOf, m, log))
		}
		return jobs, nil
	}
}
