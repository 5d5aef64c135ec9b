package discovery

import (
	"errors"

	"github.com/Oberon01/tonertrack-v2/logger"
	"github.com/Oberon01/tonertrack-v2/store"
)

// MergeSummary reports what a sync pass did.
type MergeSummary struct {
	Created   int
	Updated   int
	Unchanged int
}

// SyncDiscovered folds a discovery result into the repository. Unknown
// addresses are created with the advertised name, unlocked. Known addresses
// take the advertised name unless an operator locked it; location follows
// discovery either way. Records are never deleted here: a device missing
// from one browse window is not gone.
func SyncDiscovered(repo *store.Repository, found []Discovered, log *logger.Logger) (MergeSummary, error) {
	var summary MergeSummary

	for _, d := range found {
		existing, err := repo.Get(d.Address)
		switch {
		case errors.Is(err, store.ErrNotFound):
			_, err := repo.Apply(d.Address, store.ApplyOp{Actor: store.ActorSystem, Action: store.ActionSync, AllowCreate: true}, func(r *store.PrinterRecord) error {
				r.DisplayName = displayName(d)
				r.Location = d.Location
				return nil
			})
			if err != nil {
				return summary, err
			}
			summary.Created++
			if log != nil {
				log.Info("Discovered new printer", "address", d.Address, "name", displayName(d))
			}

		case err != nil:
			return summary, err

		default:
			name := existing.DisplayName
			if !existing.NameLocked && d.Name != "" {
				name = d.Name
			}
			location := existing.Location
			if d.Location != "" {
				location = d.Location
			}
			if name == existing.DisplayName && location == existing.Location {
				summary.Unchanged++
				continue
			}
			_, err := repo.Apply(d.Address, store.ApplyOp{Actor: store.ActorSystem, Action: store.ActionSync}, func(r *store.PrinterRecord) error {
				r.DisplayName = name
				r.Location = location
				return nil
			})
			if err != nil {
				return summary, err
			}
			summary.Updated++
		}
	}

	if log != nil {
		log.Info("Discovery sync finished",
			"created", summary.Created, "updated", summary.Updated, "unchanged", summary.Unchanged)
	}
	return summary, nil
}

// displayName prefers the advertised instance name, falling back to the
// address so new records are never blank.
func displayName(d Discovered) string {
	if d.Name != "" {
		return d.Name
	}
	return d.Address
}
