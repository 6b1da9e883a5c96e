package ir

// EngineVersion is the osq engine version.
const EngineVersion = "0.1.0"
