package synthesis

// Tail exposes tail to the black-box tests.
var Tail = tail
