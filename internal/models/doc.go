// Lmsync - LMS Extraction and Identity Harmonization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lmsync

/*
Package models defines the data structures shared across Lmsync.

Key Components:

  - Record: a canonical resource record (column name to value) produced by the
    source extractors and consumed by the sync writer
  - Resource: a fixed table descriptor (identity, attribute, link and volatile
    columns) with the DDL needed to create its snapshot and staging tables
  - Catalog: the lms.* and edfi.* snapshot resources in dependency order
  - RunSummary, ResourceResult, HarmonizeReport: run bookkeeping shared by the
    run manager, the run state store, run events and the admin API
  - APIResponse, APIError: the admin API response envelope

Snapshot Tables:

Every snapshot table carries its identity columns, its attribute columns, any
link columns owned by the harmonizer, and three writer-owned columns:

  - Hash: hex BLAKE2b-256 of the canonical attribute values
  - CreateDate: set once when the row is first inserted
  - LastModifiedDate: bumped whenever the hash changes

Thread Safety:

Resource descriptors are immutable after package initialization and safe for
concurrent use. Record values are plain maps and follow normal map rules.
*/
package models
