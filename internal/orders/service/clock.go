package service

import "time"

// timeNow is swapped by tests that pin order numbers.
var timeNow = time.Now
