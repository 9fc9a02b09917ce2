package engine

// RequestHashForTest exposes the canonical request hash to black-box tests.
var RequestHashForTest = requestHash
