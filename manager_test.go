package resilience_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	resilience "github.com/Tomefy5/jurachain-sub000"
)

var _ = Describe("Manager", func() {
	var (
		ctx     context.Context
		cancel  context.CancelFunc
		manager *resilience.Manager
	)

	newManager := func(opts ...resilience.ManagerOption) *resilience.Manager {
		base := []resilience.ManagerOption{
			resilience.WithLogger(quietLogger),
			resilience.WithDefaultCircuitBreakerConfig(resilience.CircuitBreakerConfig{
				FailureThreshold: 5,
				ResetTimeout:     time.Minute,
				Logger:           quietLogger,
			}),
		}
		return resilience.NewManager(append(base, opts...)...)
	}

	BeforeEach(func() {
		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		manager = newManager()
	})

	AfterEach(func() {
		cancel()
	})

	Describe("Execute", func() {
		It("returns the operation result on success", func() {
			result, err := manager.Execute(ctx, "supabase", func(ctx context.Context) (any, error) {
				return "document-42", nil
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal("document-42"))
		})

		It("registers unknown services on the fly", func() {
			_, err := manager.Execute(ctx, "brand-new", func(ctx context.Context) (any, error) {
				return nil, nil
			})
			Expect(err).NotTo(HaveOccurred())

			_, err = manager.Registry().HealthStatus("brand-new")
			Expect(err).NotTo(HaveOccurred())
		})

		It("retries a transient failure and succeeds", func() {
			var calls atomic.Int32
			result, err := manager.Execute(ctx, "supabase", func(ctx context.Context) (any, error) {
				if calls.Add(1) < 3 {
					return nil, errors.New("connection refused")
				}
				return "recovered", nil
			},
				resilience.WithMaxRetries(2),
				resilience.WithRetryDelay(time.Millisecond),
			)

			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal("recovered"))
			Expect(calls.Load()).To(Equal(int32(3)))

			stats := manager.Registry().ErrorStats()
			Expect(stats["supabase"].Outcomes[resilience.OutcomeRetriedSuccess]).To(Equal(int64(1)))
		})

		It("invokes a perpetually failing retryable operation at most maxRetries+1 times", func() {
			var calls atomic.Int32
			_, err := manager.Execute(ctx, "supabase", func(ctx context.Context) (any, error) {
				calls.Add(1)
				return nil, errors.New("connection refused")
			},
				resilience.WithMaxRetries(2),
				resilience.WithRetryDelay(time.Millisecond),
			)

			Expect(err).To(HaveOccurred())
			Expect(calls.Load()).To(Equal(int32(3)))
		})

		It("invokes a non-retryable operation exactly once", func() {
			var calls atomic.Int32
			started := time.Now()
			_, err := manager.Execute(ctx, "hedera", func(ctx context.Context) (any, error) {
				calls.Add(1)
				return nil, errors.New("service unavailable")
			},
				resilience.NonRetryable(),
				resilience.WithMaxRetries(5),
				resilience.WithRetryDelay(time.Second),
			)

			Expect(err).To(HaveOccurred())
			Expect(calls.Load()).To(Equal(int32(1)))
			// No retry delay may be spent on the way out.
			Expect(time.Since(started)).To(BeNumerically("<", 500*time.Millisecond))
		})

		It("never retries a non-retryable category", func() {
			var calls atomic.Int32
			_, err := manager.Execute(ctx, "supabase", func(ctx context.Context) (any, error) {
				calls.Add(1)
				return nil, resilience.NewStatusCodeError(400, errors.New("invalid input"))
			},
				resilience.WithMaxRetries(3),
				resilience.WithRetryDelay(time.Millisecond),
			)

			Expect(calls.Load()).To(Equal(int32(1)))

			var classified *resilience.ClassifiedError
			Expect(errors.As(err, &classified)).To(BeTrue())
			Expect(classified.Category).To(Equal(resilience.CategoryValidation))
			Expect(classified.Retryable).To(BeFalse())
		})

		It("classifies a timed-out attempt as TIMEOUT_ERROR", func() {
			_, err := manager.Execute(ctx, "mistral", func(ctx context.Context) (any, error) {
				select {
				case <-time.After(500 * time.Millisecond):
					return "too late", nil
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			},
				resilience.WithTimeout(20*time.Millisecond),
				resilience.WithMaxRetries(0),
			)

			var classified *resilience.ClassifiedError
			Expect(errors.As(err, &classified)).To(BeTrue())
			Expect(classified.Category).To(Equal(resilience.CategoryTimeout))
		})

		It("surfaces errors in the requested language", func() {
			_, err := manager.Execute(ctx, "supabase", func(ctx context.Context) (any, error) {
				return nil, errors.New("connection refused")
			},
				resilience.WithMaxRetries(0),
				resilience.WithLanguage(resilience.LanguageMalagasy),
			)

			var classified *resilience.ClassifiedError
			Expect(errors.As(err, &classified)).To(BeTrue())
			Expect(classified.Title).To(Equal("Olana amin'ny fifandraisana"))
		})

		It("keeps one correlation ID across retries and fallback decoration", func() {
			_, err := manager.Execute(ctx, "supabase", func(ctx context.Context) (any, error) {
				return nil, errors.New("connection refused")
			},
				resilience.WithMaxRetries(2),
				resilience.WithRetryDelay(time.Millisecond),
				resilience.WithFallback(func(ctx context.Context, cause *resilience.ClassifiedError) (any, error) {
					return nil, errors.New("cache miss")
				}),
			)

			var classified *resilience.ClassifiedError
			Expect(errors.As(err, &classified)).To(BeTrue())
			Expect(classified.CorrelationID).NotTo(BeEmpty())
			Expect(classified.FallbackAttempted).To(BeTrue())
		})
	})

	Describe("fallbacks", func() {
		It("serves the fallback result after the primary path is exhausted", func() {
			result, err := manager.Execute(ctx, "mistral", func(ctx context.Context) (any, error) {
				return nil, errors.New("service unavailable")
			},
				resilience.WithMaxRetries(1),
				resilience.WithRetryDelay(time.Millisecond),
				resilience.WithFallback(func(ctx context.Context, cause *resilience.ClassifiedError) (any, error) {
					return "template-document", nil
				}),
			)

			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal("template-document"))

			stats := manager.Registry().ErrorStats()
			Expect(stats["mistral"].Outcomes[resilience.OutcomeFallback]).To(Equal(int64(1)))
		})

		It("exposes caller metadata to fallbacks through the context", func() {
			var documentID any
			_, err := manager.Execute(ctx, "hedera", func(ctx context.Context) (any, error) {
				return nil, errors.New("service unavailable")
			},
				resilience.NonRetryable(),
				resilience.WithContextValue("document_id", "doc-42"),
				resilience.WithFallback(func(ctx context.Context, cause *resilience.ClassifiedError) (any, error) {
					documentID = resilience.OperationContext(ctx)["document_id"]
					return "queued", nil
				}),
			)

			Expect(err).NotTo(HaveOccurred())
			Expect(documentID).To(Equal("doc-42"))
		})

		It("attaches the degraded-mode message when everything fails", func() {
			_, err := manager.Execute(ctx, "hedera", func(ctx context.Context) (any, error) {
				return nil, errors.New("service unavailable")
			},
				resilience.NonRetryable(),
				resilience.WithFallbackMessage("Signature différée : le document sera ancré plus tard."),
				resilience.WithFallback(func(ctx context.Context, cause *resilience.ClassifiedError) (any, error) {
					return nil, errors.New("queue full")
				}),
			)

			var classified *resilience.ClassifiedError
			Expect(errors.As(err, &classified)).To(BeTrue())
			Expect(classified.FallbackMessage).To(ContainSubstring("Signature différée"))
		})
	})

	Describe("circuit integration", func() {
		BeforeEach(func() {
			manager = newManager(resilience.WithDefaultCircuitBreakerConfig(resilience.CircuitBreakerConfig{
				FailureThreshold: 1,
				ResetTimeout:     time.Hour,
				Logger:           quietLogger,
			}))
		})

		It("fails fast with reason circuit_open once the circuit is open", func() {
			_, err := manager.Execute(ctx, "hedera", func(ctx context.Context) (any, error) {
				return nil, errors.New("service unavailable")
			}, resilience.NonRetryable())
			Expect(err).To(HaveOccurred())

			var calls atomic.Int32
			_, err = manager.Execute(ctx, "hedera", func(ctx context.Context) (any, error) {
				calls.Add(1)
				return "never", nil
			})

			var classified *resilience.ClassifiedError
			Expect(errors.As(err, &classified)).To(BeTrue())
			Expect(classified.Category).To(Equal(resilience.CategoryServiceUnavailable))
			Expect(classified.Reason).To(Equal(resilience.ReasonCircuitOpen))
			Expect(calls.Load()).To(BeZero())
		})

		It("counts a whole retry burst as one failure against the threshold", func() {
			m := newManager(resilience.WithDefaultCircuitBreakerConfig(resilience.CircuitBreakerConfig{
				FailureThreshold: 2,
				ResetTimeout:     time.Hour,
				Logger:           quietLogger,
			}))

			_, err := m.Execute(ctx, "supabase", func(ctx context.Context) (any, error) {
				return nil, errors.New("connection refused")
			},
				resilience.WithMaxRetries(4),
				resilience.WithRetryDelay(time.Millisecond),
			)
			Expect(err).To(HaveOccurred())

			status, err := m.Registry().HealthStatus("supabase")
			Expect(err).NotTo(HaveOccurred())
			Expect(status.State).To(Equal(resilience.StateClosed))
			Expect(status.ConsecutiveFailures).To(Equal(uint32(1)))
		})

		It("runs fallbacks even when the circuit refuses the call", func() {
			_, err := manager.Execute(ctx, "hedera", func(ctx context.Context) (any, error) {
				return nil, errors.New("service unavailable")
			}, resilience.NonRetryable())
			Expect(err).To(HaveOccurred())

			result, err := manager.Execute(ctx, "hedera", func(ctx context.Context) (any, error) {
				return "never", nil
			}, resilience.WithFallback(func(ctx context.Context, cause *resilience.ClassifiedError) (any, error) {
				Expect(cause.Reason).To(Equal(resilience.ReasonCircuitOpen))
				return "queued-for-later", nil
			}))

			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal("queued-for-later"))
		})

		It("recovers after an operator reset", func() {
			_, err := manager.Execute(ctx, "hedera", func(ctx context.Context) (any, error) {
				return nil, errors.New("service unavailable")
			}, resilience.NonRetryable())
			Expect(err).To(HaveOccurred())

			Expect(manager.ResetCircuitBreaker("hedera")).To(Succeed())

			result, err := manager.Execute(ctx, "hedera", func(ctx context.Context) (any, error) {
				return "anchored", nil
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal("anchored"))
		})
	})

	Describe("backpressure", func() {
		It("rejects the call over the cap immediately and recovers when slots free up", func() {
			m := newManager(resilience.WithMaxConcurrentOperations(2))

			gate := make(chan struct{})
			var inFlight atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < 2; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := m.Execute(ctx, "supabase", func(ctx context.Context) (any, error) {
						inFlight.Add(1)
						<-gate
						return nil, nil
					})
					Expect(err).NotTo(HaveOccurred())
				}()
			}
			Eventually(inFlight.Load).Should(Equal(int32(2)))

			started := time.Now()
			_, err := m.Execute(ctx, "supabase", func(ctx context.Context) (any, error) {
				return "never", nil
			})

			var classified *resilience.ClassifiedError
			Expect(errors.As(err, &classified)).To(BeTrue())
			Expect(classified.Reason).To(Equal(resilience.ReasonBackpressure))
			Expect(classified.Category).To(Equal(resilience.CategoryServiceUnavailable))
			Expect(time.Since(started)).To(BeNumerically("<", 100*time.Millisecond))

			close(gate)
			wg.Wait()

			_, err = m.Execute(ctx, "supabase", func(ctx context.Context) (any, error) {
				return "admitted", nil
			})
			Expect(err).NotTo(HaveOccurred())
		})

		It("returns the active counter to zero whatever the outcomes were", func() {
			m := newManager(resilience.WithMaxConcurrentOperations(4))

			var wg sync.WaitGroup
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, _ = m.Execute(ctx, "supabase", func(ctx context.Context) (any, error) {
						if i%3 == 0 {
							return nil, errors.New("connection refused")
						}
						return nil, nil
					}, resilience.WithMaxRetries(0))
				}(i)
			}
			wg.Wait()

			Expect(m.GetSystemHealth().ActiveOperations).To(BeZero())
		})
	})

	Describe("degradation levels", func() {
		It("rejects an invalid level", func() {
			Expect(manager.HandleSystemDegradation("catastrophic")).NotTo(Succeed())
			Expect(manager.DegradationLevel()).To(Equal(resilience.DegradationNone))
		})

		It("admits everything under light degradation", func() {
			Expect(manager.HandleSystemDegradation(resilience.DegradationLight)).To(Succeed())

			_, err := manager.Execute(ctx, "supabase", func(ctx context.Context) (any, error) {
				return nil, nil
			}, resilience.WithPriority(resilience.PriorityLow))
			Expect(err).NotTo(HaveOccurred())
		})

		It("sheds low priority under moderate degradation", func() {
			Expect(manager.HandleSystemDegradation(resilience.DegradationModerate)).To(Succeed())

			_, err := manager.Execute(ctx, "supabase", func(ctx context.Context) (any, error) {
				return nil, nil
			}, resilience.WithPriority(resilience.PriorityLow))

			var classified *resilience.ClassifiedError
			Expect(errors.As(err, &classified)).To(BeTrue())
			Expect(classified.Reason).To(Equal(resilience.ReasonDegraded))

			_, err = manager.Execute(ctx, "supabase", func(ctx context.Context) (any, error) {
				return nil, nil
			})
			Expect(err).NotTo(HaveOccurred())
		})

		It("admits only critical priority under severe degradation", func() {
			Expect(manager.HandleSystemDegradation(resilience.DegradationSevere)).To(Succeed())

			_, err := manager.Execute(ctx, "supabase", func(ctx context.Context) (any, error) {
				return nil, nil
			})
			var classified *resilience.ClassifiedError
			Expect(errors.As(err, &classified)).To(BeTrue())
			Expect(classified.Reason).To(Equal(resilience.ReasonDegraded))

			_, err = manager.Execute(ctx, "supabase", func(ctx context.Context) (any, error) {
				return "signed", nil
			}, resilience.WithPriority(resilience.PriorityCritical))
			Expect(err).NotTo(HaveOccurred())
		})

		It("restores normal admission on recovery", func() {
			Expect(manager.HandleSystemDegradation(resilience.DegradationSevere)).To(Succeed())
			manager.RecoverFromDegradation()
			Expect(manager.DegradationLevel()).To(Equal(resilience.DegradationNone))

			_, err := manager.Execute(ctx, "supabase", func(ctx context.Context) (any, error) {
				return nil, nil
			}, resilience.WithPriority(resilience.PriorityLow))
			Expect(err).NotTo(HaveOccurred())
		})

		It("is idempotent when re-applying the current level", func() {
			Expect(manager.HandleSystemDegradation(resilience.DegradationModerate)).To(Succeed())
			Expect(manager.HandleSystemDegradation(resilience.DegradationModerate)).To(Succeed())
			Expect(manager.DegradationLevel()).To(Equal(resilience.DegradationModerate))
		})
	})

	Describe("GetSystemHealth", func() {
		It("reports 100% with no services registered", func() {
			health := manager.GetSystemHealth()
			Expect(health.HealthPercentage).To(Equal(100.0))
			Expect(health.DegradationLevel).To(Equal(resilience.DegradationNone))
		})

		It("computes the healthy percentage across services", func() {
			m := newManager(resilience.WithDefaultCircuitBreakerConfig(resilience.CircuitBreakerConfig{
				FailureThreshold: 1,
				ResetTimeout:     time.Hour,
				Logger:           quietLogger,
			}))

			_, err := m.Execute(ctx, "supabase", func(ctx context.Context) (any, error) {
				return nil, nil
			})
			Expect(err).NotTo(HaveOccurred())

			_, err = m.Execute(ctx, "hedera", func(ctx context.Context) (any, error) {
				return nil, errors.New("service unavailable")
			}, resilience.NonRetryable())
			Expect(err).To(HaveOccurred())

			health := m.GetSystemHealth()
			Expect(health.Services).To(HaveLen(2))
			Expect(health.HealthPercentage).To(Equal(50.0))
			Expect(health.Services["hedera"].Status).To(Equal(resilience.HealthUnhealthy))
		})
	})

	Describe("Shutdown", func() {
		It("rejects new work with a non-retryable shutdown error", func() {
			Expect(manager.Shutdown(ctx)).To(Succeed())

			_, err := manager.Execute(ctx, "supabase", func(ctx context.Context) (any, error) {
				return "never", nil
			})

			var classified *resilience.ClassifiedError
			Expect(errors.As(err, &classified)).To(BeTrue())
			Expect(classified.Reason).To(Equal(resilience.ReasonShutdown))
			Expect(classified.Retryable).To(BeFalse())
		})

		It("waits for in-flight operations to drain", func() {
			m := newManager(resilience.WithMaxConcurrentOperations(2))

			gate := make(chan struct{})
			running := make(chan struct{})
			go func() {
				_, _ = m.Execute(ctx, "supabase", func(ctx context.Context) (any, error) {
					close(running)
					<-gate
					return nil, nil
				})
			}()
			<-running

			shutdownDone := make(chan error, 1)
			go func() {
				shutdownDone <- m.Shutdown(ctx)
			}()

			Consistently(shutdownDone, 100*time.Millisecond).ShouldNot(Receive())
			close(gate)
			Eventually(shutdownDone).Should(Receive(BeNil()))
		})

		It("gives up when its context is cancelled mid-drain", func() {
			m := newManager(resilience.WithMaxConcurrentOperations(2))

			gate := make(chan struct{})
			defer close(gate)
			running := make(chan struct{})
			go func() {
				_, _ = m.Execute(ctx, "supabase", func(ctx context.Context) (any, error) {
					close(running)
					<-gate
					return nil, nil
				})
			}()
			<-running

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer shutdownCancel()
			Expect(m.Shutdown(shutdownCtx)).NotTo(Succeed())
		})
	})
})

var _ = Describe("Execute (typed)", func() {
	var (
		ctx     context.Context
		manager *resilience.Manager
	)

	BeforeEach(func() {
		ctx = context.Background()
		manager = resilience.NewManager(resilience.WithLogger(quietLogger))
	})

	It("returns a typed result", func() {
		value, err := resilience.Execute(ctx, manager, "supabase", func(ctx context.Context) (int, error) {
			return 42, nil
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(value).To(Equal(42))
	})

	It("rejects a fallback value of the wrong type", func() {
		_, err := resilience.Execute(ctx, manager, "mistral", func(ctx context.Context) (string, error) {
			return "", errors.New("service unavailable")
		},
			resilience.NonRetryable(),
			resilience.WithFallback(func(ctx context.Context, cause *resilience.ClassifiedError) (any, error) {
				return 123, nil
			}),
		)
		Expect(err).To(HaveOccurred())
	})
})
