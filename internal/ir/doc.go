// Package ir provides the shared record types for the correlation engine.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal. This keeps the trigger and event
// shapes the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Events are immutable once received; nothing in the engine writes to them
//   - Triggers are owned by the trigger repository; the engine re-persists them
//   - Correlation contexts live only inside their trigger's status
//   - All JSON tags use snake_case
package ir
