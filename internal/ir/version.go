package ir

// EngineVersion is the pyrewind engine version.
const EngineVersion = "0.1.0"
