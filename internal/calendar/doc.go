// Package calendar defines the core types shared across the collector's
// subsystems: the Event record, the fetch Window, the uniform fetch Response,
// per-source health metadata, and the seam interfaces (Session, Engine,
// Renderer) that adapters and infrastructure implement.
package calendar
