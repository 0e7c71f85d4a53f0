package main

import _ "embed"

// iconData is the 64x64 tray icon.
//
//go:embed tray-icon.png
var iconData []byte
