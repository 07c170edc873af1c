// Package domain models the GeLaP household electricity dataset and the
// canonical power tables produced from it.
//
// # Data Source
//
// GeLaP (German Load Profiles) ships one compressed archive per monitored
// house. The repository is distributed as a zip of the project's GitLab tree:
// https://mygit.th-deg.de/tcg/gelap/-/archive/master/gelap-master.zip
//
// # Dataset Layout
//
// Houses are numbered from 1. For house h the dataset root contains:
//
//	hh-<h:02>.tar.xz      compressed archive, e.g. "hh-03.tar.xz"
//	hh-<h:02>/            extraction target for that archive
//
// and, once extracted, the house directory holds:
//
//	smartmeter.csv        whole-building ("site meter") readings
//	label_<e:03>.csv      readings for appliance e, e.g. "label_007.csv"
//
// Appliances are numbered from 1. The site meter is stored under a reserved
// meter number one past the last appliance (11 for the usual ten appliances).
//
// # CSV Conventions
//
// Every file starts with a header row. Timestamps are integer milliseconds
// since the Unix epoch, recorded in UTC without a zone marker.
//
//	smartmeter.csv:  <timestamp>,<phase 1>,<phase 2>,<phase 3>
//	label_xxx.csv:   <timestamp>,<ignored>,<power>
//
// The site meter's phases are summed into a single active-power value; the
// per-phase split is not kept. Empty cells and "nan"-like markers are missing
// values. Any other non-numeric cell is a parse error.
//
// # Canonical Table
//
// A [Table] holds float32 values labelled ("power", "active") under the level
// names ("physical_quantity", "type"), indexed by timestamps presented in
// Europe/Berlin. Rows with missing values are always dropped; deduplication
// (first occurrence wins) and ascending sort are optional, see
// [NormalizeOptions].
//
// # Keys
//
// Tables are addressed by [Key], rendered as "/building<h>/elec/meter<m>".
package domain
