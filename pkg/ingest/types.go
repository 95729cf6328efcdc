// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of tscore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package ingest adapts wire framings from external collaborators (the
// SNMP polling front-end or any other producer) into the persister's
// Sample type. Decoding is the only concern here; the poller itself
// remains an external collaborator.
package ingest

import (
	"context"

	"github.com/netsage-project/tscore/pkg/persister"
)

// Sink is the boundary ingestion adapters dispatch decoded samples into.
// *persister.Dispatcher satisfies this.
type Sink interface {
	Dispatch(ctx context.Context, s persister.Sample) error
}
