package sqlstore

import (
	"context"

	"github.com/teranos/bkingest/bookkeeping"
	"github.com/teranos/bkingest/errors"
)

// CurrentReplicas lists the replicas of a file in the local replica table, keyed by location
func (s *Store) CurrentReplicas(ctx context.Context, fileName string) (map[string]bookkeeping.ReplicaInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.location, r.pfn, r.se
		FROM replicas r JOIN files f ON f.file_id = r.file_id
		WHERE f.file_name = ?`, fileName)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list replicas of %s", fileName)
	}
	defer rows.Close()

	replicas := make(map[string]bookkeeping.ReplicaInfo)
	for rows.Next() {
		var location string
		var info bookkeeping.ReplicaInfo
		if err := rows.Scan(&location, &info.PFN, &info.SE); err != nil {
			return nil, errors.Wrap(err, "failed to scan replica")
		}
		replicas[location] = info
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating replicas")
	}
	return replicas, nil
}

// AddReplica records a replica of a registered file in the local table
func (s *Store) AddReplica(ctx context.Context, fileName, location string, info bookkeeping.ReplicaInfo) error {
	fileID, err := s.ResolveFileID(ctx, fileName)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO replicas (file_id, location, pfn, se) VALUES (?, ?, ?, ?)
		ON CONFLICT (file_id, location) DO UPDATE SET pfn = excluded.pfn, se = excluded.se`,
		fileID, location, info.PFN, info.SE)
	if err != nil {
		return errors.Wrapf(err, "failed to add replica of %s at %s", fileName, location)
	}
	return nil
}

// RemoveReplica drops a replica from the local table
func (s *Store) RemoveReplica(ctx context.Context, fileName, location string) error {
	return execAffecting(ctx, s.db, "remove replica of "+fileName+" at "+location, `
		DELETE FROM replicas
		WHERE location = ? AND file_id = (SELECT file_id FROM files WHERE file_name = ?)`,
		location, fileName)
}
