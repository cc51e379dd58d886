package world

// stepMigration moves population out of states whose welfare has fallen
// under the threshold, toward the best-welfare state, when that is
// strictly better than staying.
func (w *World) stepMigration(rec *tickRecord) {
	for _, code := range StateCodes {
		r := w.regions[code]
		if r.Welfare >= w.tun.Migration.WelfareThreshold {
			continue
		}

		var dest *Region
		for _, dc := range StateCodes {
			if dc == code {
				continue
			}
			d := w.regions[dc]
			if dest == nil || d.Welfare > dest.Welfare {
				dest = d
			}
		}
		if dest == nil || dest.Welfare <= r.Welfare {
			continue
		}

		migrants := int64(float64(r.Population) * w.tun.Migration.Rate)
		if migrants <= 0 {
			continue
		}
		r.Population -= migrants
		dest.Population += migrants
		rec.migrations++
		w.logf("migration: %d people %s -> %s", migrants, code, dest.Code)
	}
}
