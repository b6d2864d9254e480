package main

import "tools.zach/dev/keepwarm/internal/paths"

// DataPaths lets command code build data directory paths without
// qualifying the internal package.
type DataPaths = paths.DataDir
